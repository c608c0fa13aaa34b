// Package protocol implements the line-delimited JSON stdio framing
// (A3, spec §6): one Command object per input line, one Result object
// per output line.
package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
)

// maxLine bounds a single command/result line. Guest sources (and
// rendered evaluations) can be long, so this is far above
// bufio.Scanner's 64KiB default.
const maxLine = 64 * 1024 * 1024

// Command is one line of the command stream (spec §6).
type Command struct {
	Source   string      `json:"source"`
	Locator  string      `json:"locator,omitempty"`
	Platform string      `json:"platform"`
	Scope    string      `json:"scope,omitempty"`
	ID       interface{} `json:"id,omitempty"`
}

// Result is one line of the result stream (spec §6): exactly one of
// Evaluation/Exception/Out/Err is populated per line.
type Result struct {
	Evaluation string      `json:"evaluation,omitempty"`
	Exception  string      `json:"exception,omitempty"`
	Out        string      `json:"out,omitempty"`
	Err        string      `json:"err,omitempty"`
	ID         interface{} `json:"id,omitempty"`
}

// Reader decodes a Command per line from an underlying stream.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Reader{scanner: scanner}
}

// Next reads and decodes the next command, or returns io.EOF when the
// stream is exhausted (matching bufio.Scanner's own convention, which
// reports end-of-stream via a false Scan() with a nil Err()).
func (r *Reader) Next() (Command, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return Command{}, err
		}
		return Command{}, io.EOF
	}
	var cmd Command
	if err := json.Unmarshal(r.scanner.Bytes(), &cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Writer encodes one Result per line to an underlying stream, guarding
// concurrent writers with a mutex so two command goroutines' result
// lines never interleave mid-write — the same synchronization the
// teacher's consoleWriter applies around its output stream.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(result Result) error {
	line, err := json.Marshal(result)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(line)
	return err
}
