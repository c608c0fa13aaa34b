package evalhost

import (
	"context"
	"testing"

	"github.com/jamesdiacono/replete/internal/analyze"
	"github.com/jamesdiacono/replete/internal/locator"
	"github.com/jamesdiacono/replete/internal/replize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replizeFor(t *testing.T, src, scope string) string {
	t.Helper()
	a, err := analyze.Parse(src)
	require.NoError(t, err)
	out, err := replize.Replize(src, a, nil, scope)
	require.NoError(t, err)
	return out
}

func TestGojaEvalReturnsResultValue(t *testing.T) {
	t.Parallel()
	factory := NewGojaFactory(nil)
	ev, err := factory("repl-1")
	require.NoError(t, err)
	defer ev.Close()

	script := replizeFor(t, "1 + 2;", "repl-1")
	results, err := ev.Eval(context.Background(), EvalRequest{Script: script})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "3", results[0].Evaluation)
	assert.Empty(t, results[0].Exception)
}

func TestGojaEvalPersistsScopeAcrossCalls(t *testing.T) {
	t.Parallel()
	factory := NewGojaFactory(nil)
	ev, err := factory("repl-1")
	require.NoError(t, err)
	defer ev.Close()

	first := replizeFor(t, "let x = 10;", "repl-1")
	_, err = ev.Eval(context.Background(), EvalRequest{Script: first})
	require.NoError(t, err)

	second := replizeFor(t, "x + 5;", "repl-1")
	results, err := ev.Eval(context.Background(), EvalRequest{Script: second})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "15", results[0].Evaluation)
}

func TestGojaEvalReportsRuntimeException(t *testing.T) {
	t.Parallel()
	factory := NewGojaFactory(nil)
	ev, err := factory("repl-1")
	require.NoError(t, err)
	defer ev.Close()

	script := replizeFor(t, "undefinedVariableReference;", "repl-1")
	results, err := ev.Eval(context.Background(), EvalRequest{Script: script})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Evaluation)
	assert.NotEmpty(t, results[0].Exception)
}

func TestGojaEvalReportsSyntaxError(t *testing.T) {
	t.Parallel()
	factory := NewGojaFactory(nil)
	ev, err := factory("repl-1")
	require.NoError(t, err)
	defer ev.Close()

	results, err := ev.Eval(context.Background(), EvalRequest{Script: "(function () { ) )( }());"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Exception)
}

func TestGojaEvalPopulatesImportsFromLoader(t *testing.T) {
	t.Parallel()
	loader := func(ctx context.Context, specifier string) (map[string]interface{}, error) {
		return map[string]interface{}{"default": 99}, nil
	}
	factory := NewGojaFactory(loader)
	ev, err := factory("repl-1")
	require.NoError(t, err)
	defer ev.Close()

	src := `import value from "./thing.js";
value;`
	a, err := analyze.Parse(src)
	require.NoError(t, err)
	script, err := replize.Replize(src, a, nil, "repl-1")
	require.NoError(t, err)

	results, err := ev.Eval(context.Background(), EvalRequest{
		Script:           script,
		StaticSpecifiers: []string{"./thing.js"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "99", results[0].Evaluation)
}

func TestGojaSpecifyStripsFileScheme(t *testing.T) {
	t.Parallel()
	ev := &GojaEvaluator{}
	got := ev.Specify(locator.FromPath("/a/b.js"))
	assert.Equal(t, "/a/b.js", got)
}
