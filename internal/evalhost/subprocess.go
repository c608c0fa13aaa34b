package evalhost

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/jamesdiacono/replete/internal/locator"
)

// subprocessFrame is the line-delimited JSON shape spoken with the
// child process — the same technique (bufio.Scanner reader, mutex
// guarded io.Writer, one JSON object per line) internal/protocol uses
// for Replete's own stdio, so a real Node/Deno shim can implement this
// side with the same tooling a guest-language author already reaches
// for (spec §4.8 "a real Node/Deno shim could implement it").
type subprocessFrame struct {
	Script           string   `json:"script,omitempty"`
	StaticSpecifiers []string `json:"staticSpecifiers,omitempty"`
	Wait             bool     `json:"wait,omitempty"`
	Evaluation       string   `json:"evaluation,omitempty"`
	Exception        string   `json:"exception,omitempty"`
	Out              string   `json:"out,omitempty"`
	Err              string   `json:"err,omitempty"`
}

// SubprocessEvaluator speaks subprocessFrame over the child's
// stdin/stdout. specify returns the HTTP URL form (subprocess runtimes
// fetch modules over the module server, per spec §4.8).
type SubprocessEvaluator struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	scanner  *bufio.Scanner
	mu       sync.Mutex
	specify  func(locator.Locator) string
}

// NewSubprocessFactory returns a Factory that spawns execPath (with
// args) fresh for each scope session. moduleServerURL is the base URL
// ("http://host:port") the child should fetch modules from; specify
// projects a locator into a path appended to it.
func NewSubprocessFactory(execPath string, args []string, moduleServerURL string) Factory {
	return func(scope string) (Evaluator, error) {
		cmd := exec.Command(execPath, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("evalhost: subprocess stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("evalhost: subprocess stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("evalhost: subprocess start: %w", err)
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSubprocessLine)

		return &SubprocessEvaluator{
			cmd:     cmd,
			stdin:   stdin,
			scanner: scanner,
			specify: func(l locator.Locator) string { return moduleServerURL + pathOf(l) },
		}, nil
	}
}

const maxSubprocessLine = 64 * 1024 * 1024

func pathOf(l locator.Locator) string {
	if l.IsFile() {
		return l.Path()
	}
	return l.String()
}

func (s *SubprocessEvaluator) Specify(l locator.Locator) string { return s.specify(l) }

func (s *SubprocessEvaluator) Eval(ctx context.Context, req EvalRequest) ([]EvalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(subprocessFrame{
		Script:           req.Script,
		StaticSpecifiers: req.StaticSpecifiers,
		Wait:             req.Wait,
	})
	if err != nil {
		return nil, fmt.Errorf("evalhost: encode subprocess request: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.stdin.Write(line); err != nil {
		return nil, fmt.Errorf("evalhost: subprocess transport failure: %w", err)
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("evalhost: subprocess transport failure: %w", err)
		}
		return nil, fmt.Errorf("evalhost: subprocess transport failure: child closed stdout")
	}
	var frame subprocessFrame
	if err := json.Unmarshal(s.scanner.Bytes(), &frame); err != nil {
		return nil, fmt.Errorf("evalhost: decode subprocess response: %w", err)
	}

	return []EvalResult{{
		Evaluation: frame.Evaluation,
		Exception:  frame.Exception,
		Out:        frame.Out,
		Err:        frame.Err,
	}}, nil
}

func (s *SubprocessEvaluator) Close() error {
	_ = s.stdin.Close()
	return s.cmd.Wait()
}
