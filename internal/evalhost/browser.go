package evalhost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jamesdiacono/replete/internal/locator"
)

// browserFrame is the wire shape relayed to/from a connected browser
// tab: the relay posts {script, staticSpecifiers} and awaits one
// {evaluation|exception} frame back per tab (spec §7 "Broadcast
// evaluators may yield multiple reports per command").
type browserFrame struct {
	Script           string   `json:"script,omitempty"`
	StaticSpecifiers []string `json:"staticSpecifiers,omitempty"`
	Evaluation       string   `json:"evaluation,omitempty"`
	Exception        string   `json:"exception,omitempty"`
}

var upgrader = websocket.Upgrader{}

// BrowserRelay accepts one websocket connection per scope (and
// possibly more than one, for a multi-tab broadcast session) and
// relays eval requests to every connected tab, grounded on the
// teacher's own websocket test server (`Upgrader{}.Upgrade`,
// `conn.ReadMessage`/`conn.NextWriter`).
type BrowserRelay struct {
	moduleServerURL string
	mu              sync.Mutex
	sessions        map[string]*browserSession
}

func NewBrowserRelay(moduleServerURL string) *BrowserRelay {
	return &BrowserRelay{moduleServerURL: moduleServerURL, sessions: map[string]*browserSession{}}
}

// Factory returns the evalhost.Factory this relay backs: each scope
// gets (and keeps) one browserSession for the lifetime of the relay,
// so tabs that connect after the session was first created still join
// the same broadcast group.
func (r *BrowserRelay) Factory() Factory {
	return func(scope string) (Evaluator, error) {
		return r.sessionFor(scope), nil
	}
}

// Handler upgrades GET requests (query carrying ?scope=<name>) to a
// websocket connection and attaches it to that scope's session.
func (r *BrowserRelay) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		scope := req.URL.Query().Get("scope")
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.sessionFor(scope).addConn(conn)
	})
}

func (r *BrowserRelay) sessionFor(scope string) *browserSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[scope]
	if !ok {
		s = &browserSession{scope: scope, moduleServerURL: r.moduleServerURL}
		r.sessions[scope] = s
	}
	return s
}

type browserConn struct {
	conn    *websocket.Conn
	results chan browserFrame
}

type browserSession struct {
	scope           string
	moduleServerURL string
	mu              sync.Mutex
	conns           []*browserConn
}

func (s *browserSession) addConn(conn *websocket.Conn) {
	bc := &browserConn{conn: conn, results: make(chan browserFrame, 1)}
	s.mu.Lock()
	s.conns = append(s.conns, bc)
	s.mu.Unlock()
	go s.readLoop(bc)
}

func (s *browserSession) readLoop(bc *browserConn) {
	defer s.removeConn(bc)
	defer close(bc.results)
	for {
		_, data, err := bc.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame browserFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		bc.results <- frame
	}
}

func (s *browserSession) removeConn(bc *browserConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conns {
		if c == bc {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			return
		}
	}
}

func (s *browserSession) Specify(l locator.Locator) string {
	return s.moduleServerURL + pathOf(l)
}

// Eval broadcasts req to every tab currently connected to this scope
// and collects one EvalResult per tab (spec §7). A tab whose
// connection drops before it reports is simply skipped, matching
// "each is forwarded independently" — a dead tab cannot forward
// anything.
func (s *browserSession) Eval(ctx context.Context, req EvalRequest) ([]EvalResult, error) {
	s.mu.Lock()
	conns := append([]*browserConn(nil), s.conns...)
	s.mu.Unlock()
	if len(conns) == 0 {
		return nil, fmt.Errorf("evalhost: no browser tab connected for scope %q", s.scope)
	}

	payload, err := json.Marshal(browserFrame{Script: req.Script, StaticSpecifiers: req.StaticSpecifiers})
	if err != nil {
		return nil, fmt.Errorf("evalhost: encode browser frame: %w", err)
	}
	for _, c := range conns {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			continue
		}
	}

	var results []EvalResult
	for _, c := range conns {
		select {
		case frame, ok := <-c.results:
			if !ok {
				continue
			}
			results = append(results, EvalResult{Evaluation: frame.Evaluation, Exception: frame.Exception})
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}

func (s *browserSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.conn.Close()
	}
	return nil
}
