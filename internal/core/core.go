// Package core implements the evaluator driver (C7) and core wiring
// (A6): it owns the per-instance unguessable tag, the memoization
// caches (C5), the dependency hasher & versioner (C4), and dispatches
// each incoming command to the platform named by its evaluator
// registry entry, per spec §4.7.
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/jamesdiacono/replete/internal/analyze"
	"github.com/jamesdiacono/replete/internal/cache"
	"github.com/jamesdiacono/replete/internal/depgraph"
	"github.com/jamesdiacono/replete/internal/errext"
	"github.com/jamesdiacono/replete/internal/evalhost"
	"github.com/jamesdiacono/replete/internal/locator"
	"github.com/jamesdiacono/replete/internal/protocol"
	"github.com/jamesdiacono/replete/internal/replize"
)

// Capabilities are the external collaborators the core consumes (spec
// §4.8): locate/read/mime over the default resolvefs realization (or
// any equivalent), used by both the evaluator driver and the module
// server.
type Capabilities struct {
	Locate    func(specifier string, parent locator.Locator) (locator.Locator, error)
	Read      func(l locator.Locator) (src string, ok bool)
	ReadBytes func(l locator.Locator) ([]byte, error)
	Mime      func(l locator.Locator) (mediaType string, ok bool)
}

type readResult struct {
	text string
	ok   bool
}

type analyzeResult struct {
	analysis analyze.Analysis
	ok       bool
}

// Core owns one instance's unguessable tag, its hash/version record,
// its four memoization caches (locating, reading, analyzing,
// hashingSource — the last lives inside depgraph.Hasher), and the
// live evaluator sessions keyed by (platform, scope), per spec §3's
// "global mutable state as a single record" (§9).
type Core struct {
	tag    string
	caps   Capabilities
	state  *depgraph.State
	hasher *depgraph.Hasher

	locating         *cache.Memo[string, locator.Locator]
	reading          *cache.Memo[string, readResult]
	analyzing        *cache.Memo[string, analyzeResult]
	moduleNamespaces *cache.Memo[string, map[string]interface{}]

	// moduleLoader is a dedicated goja runtime, separate from any
	// REPL-scope session, used purely to satisfy static imports for
	// the "in-process short-circuit" (spec §4.7 step 4): evaluating a
	// dependency once and handing its scope record back as a
	// namespace object. Every goja-backed session — REPL or
	// dependency — shares GojaModuleLoader as its ModuleLoader, so a
	// module imported from two different REPL scopes still only runs
	// once.
	moduleLoader *evalhost.GojaEvaluator

	evaluators *evalhost.Registry

	mu       sync.Mutex
	sessions map[string]evalhost.Evaluator
}

// New builds a Core with a freshly generated unguessable tag (spec §3:
// "a random hex tag fixed per core instance"), via locator.NewTag.
// Call SetEvaluators once the caller has built an evalhost.Registry —
// likely registering evalhost.NewGojaFactory(c.GojaModuleLoader) under
// "goja", so REPL-originated goja sessions resolve imports the same
// way the dedicated module-loader runtime does.
func New(caps Capabilities) (*Core, error) {
	tag := locator.NewTag()
	c := &Core{
		tag:              tag,
		caps:             caps,
		state:            depgraph.NewState(tag),
		locating:         cache.NewMemo[string, locator.Locator](),
		reading:          cache.NewMemo[string, readResult](),
		analyzing:        cache.NewMemo[string, analyzeResult](),
		moduleNamespaces: cache.NewMemo[string, map[string]interface{}](),
		sessions:         map[string]evalhost.Evaluator{},
	}
	c.hasher = depgraph.NewHasher(coreSource{c})

	loaderEv, err := evalhost.NewGojaFactory(c.GojaModuleLoader)("")
	if err != nil {
		return nil, fmt.Errorf("core: start module loader runtime: %w", err)
	}
	c.moduleLoader = loaderEv.(*evalhost.GojaEvaluator)

	return c, nil
}

// SetEvaluators installs the platform registry commands dispatch
// through (spec §4.7's "looks up the platform named by the command").
func (c *Core) SetEvaluators(r *evalhost.Registry) { c.evaluators = r }

// Tag returns the instance's unguessable tag, for wiring into the
// module server (spec §4.6).
func (c *Core) Tag() string { return c.tag }

// coreSource adapts Core's cached read/locate onto depgraph.Source, so
// the hasher's own recursive reads share the "reading"/"locating"
// caches rather than hitting the filesystem capability directly.
type coreSource struct{ c *Core }

func (s coreSource) Read(l locator.Locator) (string, bool) { return s.c.read(l) }
func (s coreSource) Resolve(specifier string, parent locator.Locator) (locator.Locator, error) {
	return s.c.locate(specifier, parent)
}

func (c *Core) locate(specifier string, parent locator.Locator) (locator.Locator, error) {
	key := specifier + "\x00" + parent.String()
	return c.locating.Get(key, func() (locator.Locator, error) {
		return c.caps.Locate(specifier, parent)
	})
}

func (c *Core) read(l locator.Locator) (string, bool) {
	r, _ := c.reading.Get(l.String(), func() (readResult, error) {
		text, ok := c.caps.Read(l)
		return readResult{text: text, ok: ok}, nil
	})
	return r.text, r.ok
}

func (c *Core) analyze(l locator.Locator) (analyze.Analysis, bool, error) {
	r, err := c.analyzing.Get(l.String(), func() (analyzeResult, error) {
		src, ok := c.read(l)
		if !ok {
			return analyzeResult{}, nil
		}
		a, perr := analyze.Parse(src)
		if perr != nil {
			return analyzeResult{}, &errext.Error{Kind: errext.ParseFailure, Locator: l.String(), Err: perr}
		}
		return analyzeResult{analysis: a, ok: true}, nil
	})
	if err != nil {
		return analyze.Analysis{}, false, err
	}
	return r.analysis, r.ok, nil
}

// Invalidate evicts l's reading, analyzing and hashing_source cache
// entries (not locating, which is pure), per spec §4.5's file-change
// invalidation rule. A module-loader namespace built from l's old text
// is stale too, so that cache is evicted alongside it.
func (c *Core) Invalidate(l locator.Locator) {
	c.reading.Invalidate(l.String())
	c.analyzing.Invalidate(l.String())
	c.moduleNamespaces.Invalidate(l.String())
	c.hasher.Invalidate(l)
}

// ReadText, ReadBytes, Mime, Resolve, Versionize, Hash and Analyze
// satisfy moduleserver.Reader, moduleserver.Mime, moduleserver.Resolver
// and moduleserver.Analyzer, so a *Core can be wired directly into
// moduleserver.New without any adapter shim.

func (c *Core) ReadText(l locator.Locator) (string, bool) { return c.read(l) }
func (c *Core) ReadBytes(l locator.Locator) ([]byte, error) { return c.caps.ReadBytes(l) }
func (c *Core) Mime(l locator.Locator) (string, bool)       { return c.caps.Mime(l) }
func (c *Core) Analyze(l locator.Locator) (analyze.Analysis, bool, error) { return c.analyze(l) }
func (c *Core) Resolve(specifier string, parent locator.Locator) (locator.Locator, error) {
	return c.locate(specifier, parent)
}
func (c *Core) Versionize(l locator.Locator, hash *string) string { return c.state.Versionize(l, hash) }
func (c *Core) Hash(l locator.Locator) *string                    { return c.hasher.Hash(l) }

// GojaModuleLoader is an evalhost.ModuleLoader: given a bare path (as
// produced by GojaEvaluator.Specify), it evaluates that module exactly
// once — in its own scope, on the dedicated module-loader runtime —
// and hands back its scope record as a namespace object (spec §4.3's
// "module-like record"). Memoized by path, so concurrent or repeated
// imports of the same dependency share one evaluation, mirroring the
// "at-most-one-in-flight" rule §5 states for read/analyze/hash.
func (c *Core) GojaModuleLoader(ctx context.Context, specifier string) (map[string]interface{}, error) {
	if stripped, ok := locator.StripVersion(c.tag, specifier); ok {
		specifier = stripped
	}
	loc := locator.FromPath(specifier)
	return c.moduleNamespaces.Get(loc.String(), func() (map[string]interface{}, error) {
		a, ok, err := c.analyze(loc)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("core: module %s is not a readable text module", loc)
		}
		src, _ := c.read(loc)

		staticSpecifiers := make([]string, len(a.Imports))
		for i, im := range a.Imports {
			projected, err := c.project(c.moduleLoader, im.Specifier, loc)
			if err != nil {
				return nil, err
			}
			staticSpecifiers[i] = projected
		}
		dynamicSpecifiers := make([]string, len(a.Dynamics))
		for i, d := range a.Dynamics {
			projected, err := c.project(c.moduleLoader, d.Value, loc)
			if err != nil {
				return nil, err
			}
			dynamicSpecifiers[i] = projected
		}

		scopeName := "module\x00" + loc.String()
		script, err := replize.Replize(src, a, dynamicSpecifiers, scopeName)
		if err != nil {
			return nil, err
		}
		if _, err := c.moduleLoader.Eval(ctx, evalhost.EvalRequest{
			Script:           script,
			StaticSpecifiers: staticSpecifiers,
			Wait:             true,
		}); err != nil {
			return nil, err
		}
		return c.moduleLoader.Namespace(scopeName)
	})
}

// evaluatorFor returns the live evaluator session for (platform,
// scope), starting one if none exists yet. Sessions persist for the
// lifetime of the Core so a REPL scope's bindings survive between
// commands (spec §9 "global mutable state... process-wide map").
func (c *Core) evaluatorFor(platform, scope string) (evalhost.Evaluator, error) {
	key := platform + "\x00" + scope
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev, ok := c.sessions[key]; ok {
		return ev, nil
	}
	ev, err := c.evaluators.New(platform, scope)
	if err != nil {
		return nil, err
	}
	c.sessions[key] = ev
	return ev, nil
}

// project resolves, hashes, versionizes and projects specifier
// (against parent) through ev's own Specify hook (spec §4.6 step 2,
// reused verbatim by §4.7 step 2).
func (c *Core) project(ev evalhost.Evaluator, specifier string, parent locator.Locator) (string, error) {
	loc, err := c.locate(specifier, parent)
	if err != nil {
		return "", err
	}
	hash := c.hasher.Hash(loc)
	versioned := c.state.Versionize(loc, hash)
	return ev.Specify(locator.Locator(versioned)), nil
}

// Handle runs the evaluator-driver steps of spec §4.7 for one incoming
// command and returns one protocol.Result per report the chosen
// evaluator yields — usually one, but a broadcast evaluator (the
// browser backend) may report once per connected tab (spec §7, §8
// testable property 1). Every returned Result carries cmd.ID.
func (c *Core) Handle(ctx context.Context, cmd protocol.Command) []protocol.Result {
	fail := func(kind errext.Kind, loc string, err error) []protocol.Result {
		return []protocol.Result{{ID: cmd.ID, Err: (&errext.Error{Kind: kind, Locator: loc, Err: err}).Error()}}
	}

	// received -> analyzing
	a, err := analyze.Parse(cmd.Source)
	if err != nil {
		// analyzing -> failed
		return fail(errext.ParseFailure, "", err)
	}

	var parent locator.Locator
	if cmd.Locator != "" {
		parent, err = locator.New(cmd.Locator)
		if err != nil {
			return fail(errext.ResolveFailure, cmd.Locator, err)
		}
	}

	ev, err := c.evaluatorFor(cmd.Platform, cmd.Scope)
	if err != nil {
		return fail(errext.EvaluatorTransportFailure, "", err)
	}

	// analyzing -> resolving -> versioning
	staticSpecifiers := make([]string, len(a.Imports))
	for i, im := range a.Imports {
		projected, err := c.project(ev, im.Specifier, parent)
		if err != nil {
			return fail(errext.ResolveFailure, im.Specifier, err)
		}
		staticSpecifiers[i] = projected
	}
	dynamicSpecifiers := make([]string, len(a.Dynamics))
	for i, d := range a.Dynamics {
		projected, err := c.project(ev, d.Value, parent)
		if err != nil {
			return fail(errext.ResolveFailure, d.Value, err)
		}
		dynamicSpecifiers[i] = projected
	}

	script, err := replize.Replize(cmd.Source, a, dynamicSpecifiers, cmd.Scope)
	if err != nil {
		return fail(errext.ResolveFailure, "", err)
	}

	// versioning -> dispatched
	results, err := ev.Eval(ctx, evalhost.EvalRequest{
		Script:           script,
		StaticSpecifiers: staticSpecifiers,
		Wait:             true,
	})
	if err != nil {
		// dispatched -> failed
		return fail(errext.EvaluatorTransportFailure, "", err)
	}

	// dispatched -> delivered, one Result per reporting endpoint.
	out := make([]protocol.Result, len(results))
	for i, r := range results {
		out[i] = protocol.Result{
			ID:         cmd.ID,
			Evaluation: r.Evaluation,
			Exception:  r.Exception,
			Out:        r.Out,
			Err:        r.Err,
		}
	}
	return out
}

// Close tears down every live evaluator session (spec §5: "a core
// shutdown request... tears down... any external evaluator
// subprocesses"). The module HTTP server's own teardown is owned by
// whoever started it (cmd/replete), not Core.
func (c *Core) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, ev := range c.sessions {
		if err := ev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
