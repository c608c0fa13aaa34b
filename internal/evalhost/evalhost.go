// Package evalhost implements the external evaluator capability (A5,
// spec §4.7/§4.8): the goja in-process backend, a subprocess backend
// speaking Replete's own stdio protocol, and a browser backend
// relaying over a websocket. Each backend is registered under a
// platform key so the core can dispatch a command to whichever
// platform it names.
package evalhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/jamesdiacono/replete/internal/locator"
)

// EvalRequest is the (script, static_specifiers, dynamic_specifiers,
// wait_flag) tuple spec §4.7 step 4 hands to the external evaluator.
// Script is already a fully replized payload (C3 ran before dispatch,
// once the dynamic specifiers had been projected through this
// evaluator's own Specify — see DESIGN.md's note on why the
// script-producer closure of spec.md §4.7 collapses to a finished
// string here). StaticSpecifiers is the projected, ordered list the
// evaluator presents to the guest script as the free `imports` array.
type EvalRequest struct {
	Script           string
	StaticSpecifiers []string
	Wait             bool
}

// EvalResult is the evaluator's verdict: exactly one of Evaluation or
// Exception is populated (spec §6's result stream shape), plus
// whatever the evaluated code printed.
type EvalResult struct {
	Evaluation string
	Exception  string
	Out        string
	Err        string
}

// Evaluator is one running evaluator session, scoped to a single named
// scope (spec §3's scope-map instance).
type Evaluator interface {
	// Specify projects a resolved, versionized locator into the form
	// this platform imports by — a bare path for an in-process
	// evaluator, a fully qualified HTTP URL for a networked one (spec
	// §4.6 step 2, §9 "Dynamic dispatch over evaluators").
	Specify(l locator.Locator) string
	// Eval runs req.Script and reports its verdict. Most platforms
	// report to exactly one endpoint, but a broadcast evaluator (the
	// browser backend) may have several connected tabs reporting
	// independently for the same command (spec §7 "Broadcast
	// evaluators may yield multiple reports per command"), so Eval
	// returns one EvalResult per endpoint.
	Eval(ctx context.Context, req EvalRequest) ([]EvalResult, error)
	// Close tears down whatever resources this session holds (a
	// goja.Runtime needs none; a subprocess closes its child's stdin and
	// waits for it to exit; a browser relay closes its sockets).
	Close() error
}

// Factory starts a new Evaluator for the named scope.
type Factory func(scope string) (Evaluator, error)

// ErrUnknownPlatform is returned by Registry.New for a platform key no
// Factory was registered under — the core turns this into an
// EvaluatorTransportFailure (spec §4.7).
type ErrUnknownPlatform struct{ Platform string }

func (e *ErrUnknownPlatform) Error() string {
	return fmt.Sprintf("evalhost: no evaluator registered for platform %q", e.Platform)
}

// Registry maps a platform key ("goja", "subprocess", "browser", or a
// caller-supplied alias) to the Factory that starts sessions for it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(platform string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[platform] = f
}

// New starts a session for platform, or returns *ErrUnknownPlatform.
func (r *Registry) New(platform, scope string) (Evaluator, error) {
	r.mu.RLock()
	f, ok := r.factories[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownPlatform{Platform: platform}
	}
	return f(scope)
}
