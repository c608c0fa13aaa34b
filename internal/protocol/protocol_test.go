package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderDecodesLines(t *testing.T) {
	t.Parallel()
	in := strings.NewReader(
		`{"source":"1+1","platform":"goja"}` + "\n" +
			`{"source":"2+2","platform":"goja","scope":"s1","id":7}` + "\n",
	)
	r := NewReader(in)

	cmd1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "1+1", cmd1.Source)
	assert.Equal(t, "goja", cmd1.Platform)
	assert.Equal(t, "", cmd1.Scope)

	cmd2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "2+2", cmd2.Source)
	assert.Equal(t, "s1", cmd2.Scope)
	assert.EqualValues(t, 7, cmd2.ID)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderPropagatesDecodeError(t *testing.T) {
	t.Parallel()
	r := NewReader(strings.NewReader("not json\n"))
	_, err := r.Next()
	assert.Error(t, err)
}

func TestWriterEncodesOneResultPerLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(Result{Evaluation: "3", ID: "a"}))
	require.NoError(t, w.Write(Result{Exception: "boom"}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var r1 Result
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &r1))
	assert.Equal(t, "3", r1.Evaluation)
	assert.Equal(t, "", r1.Exception)

	var r2 Result
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &r2))
	assert.Equal(t, "boom", r2.Exception)
}

func TestWriterSerializesConcurrentWrites(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Write(Result{Out: "line"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 20)
	for _, l := range lines {
		var r Result
		require.NoError(t, json.Unmarshal([]byte(l), &r))
		assert.Equal(t, "line", r.Out)
	}
}
