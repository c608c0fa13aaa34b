package evalhost

import (
	"context"
	"runtime"
	"testing"

	"github.com/jamesdiacono/replete/internal/locator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoChildScript is a minimal "shim": for each line of JSON read from
// stdin it echoes back a fixed evaluation frame, standing in for a
// real Node/Deno child (spec §4.8).
const echoChildScript = `while IFS= read -r line; do printf '{"evaluation":"42"}\n'; done`

func TestSubprocessEvalRoundTrips(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell shim is posix-only")
	}

	factory := NewSubprocessFactory("sh", []string{"-c", echoChildScript}, "http://127.0.0.1:4000")
	ev, err := factory("repl-1")
	require.NoError(t, err)
	defer ev.Close()

	results, err := ev.Eval(context.Background(), EvalRequest{Script: "1 + 1;"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "42", results[0].Evaluation)
}

func TestSubprocessSpecifyBuildsModuleServerURL(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell shim is posix-only")
	}

	factory := NewSubprocessFactory("sh", []string{"-c", echoChildScript}, "http://127.0.0.1:4000")
	ev, err := factory("repl-1")
	require.NoError(t, err)
	defer ev.Close()

	got := ev.Specify(locator.FromPath("/a/b.js"))
	assert.Equal(t, "http://127.0.0.1:4000/a/b.js", got)
}

func TestSubprocessEvalTransportFailureWhenChildExits(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell shim is posix-only")
	}

	factory := NewSubprocessFactory("sh", []string{"-c", "exit 0"}, "http://127.0.0.1:4000")
	ev, err := factory("repl-1")
	require.NoError(t, err)

	_, err = ev.Eval(context.Background(), EvalRequest{Script: "1;"})
	assert.Error(t, err)
}
