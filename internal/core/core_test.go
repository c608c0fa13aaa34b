package core

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesdiacono/replete/internal/evalhost"
	"github.com/jamesdiacono/replete/internal/locator"
	"github.com/jamesdiacono/replete/internal/protocol"
	"github.com/jamesdiacono/replete/internal/resolvefs"
)

// newTestCore wires a *Core to a real afero.MemMapFs through
// resolvefs, with the goja backend registered as "goja" — the same
// shape cmd/replete assembles, just in-memory.
func newTestCore(t *testing.T, fs afero.Fs) *Core {
	t.Helper()
	rfs := resolvefs.New(fs, nil)
	c, err := New(Capabilities{
		Locate:    rfs.Locate,
		Read:      rfs.Read,
		ReadBytes: rfs.ReadBytes,
		Mime:      rfs.Mime,
	})
	require.NoError(t, err)

	registry := evalhost.NewRegistry()
	registry.Register("goja", evalhost.NewGojaFactory(c.GojaModuleLoader))
	c.SetEvaluators(registry)
	return c
}

func handleOne(t *testing.T, c *Core, cmd protocol.Command) protocol.Result {
	t.Helper()
	results := c.Handle(context.Background(), cmd)
	require.Len(t, results, 1)
	return results[0]
}

// Scenario 1: a const redeclared in a later command is not a
// SyntaxError, and the new binding is the one later code observes.
func TestHandleRedeclarationPreservation(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	r1 := handleOne(t, c, protocol.Command{Source: "const x = 1;", Platform: "goja", Scope: "s1"})
	assert.Empty(t, r1.Exception)
	assert.Equal(t, "1", r1.Evaluation)

	r2 := handleOne(t, c, protocol.Command{Source: "x + 1;", Platform: "goja", Scope: "s1"})
	assert.Empty(t, r2.Exception)
	assert.Equal(t, "2", r2.Evaluation)

	r3 := handleOne(t, c, protocol.Command{Source: `const x = "two";`, Platform: "goja", Scope: "s1"})
	assert.Empty(t, r3.Exception, "redeclaring x must not raise a SyntaxError")

	r4 := handleOne(t, c, protocol.Command{Source: "x;", Platform: "goja", Scope: "s1"})
	assert.Empty(t, r4.Exception)
	assert.Equal(t, "two", r4.Evaluation)
}

// Scenario 2: a function that calls another by free-variable reference
// observes the callee's latest redefinition, not the one in effect
// when the caller was first declared.
func TestHandleFunctionIdentityThroughScope(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	handleOne(t, c, protocol.Command{
		Source:   `function a() { return "red"; } function b() { return a(); }`,
		Platform: "goja",
		Scope:    "s2",
	})

	r2 := handleOne(t, c, protocol.Command{Source: "a();", Platform: "goja", Scope: "s2"})
	assert.Equal(t, "red", r2.Evaluation)

	handleOne(t, c, protocol.Command{
		Source:   `function a() { return "green"; }`,
		Platform: "goja",
		Scope:    "s2",
	})

	r4 := handleOne(t, c, protocol.Command{Source: "b();", Platform: "goja", Scope: "s2"})
	assert.Empty(t, r4.Exception)
	assert.Equal(t, "green", r4.Evaluation, "b must observe a's latest redefinition through the shared scope")
}

// Scenario 3: editing an imported module's file bumps its version and
// changes the namespace a re-evaluated importer observes, once the
// caller reports the change via Invalidate (the watch collaborator's
// job in a real process).
func TestHandleVersioningOnChange(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/m.js", []byte("export default 1;\n"), 0o644))
	c := newTestCore(t, fs)

	parent := locator.FromPath("/c.js")
	cmd := protocol.Command{
		Source:   `import x from "./m.js"; x;`,
		Locator:  parent.String(),
		Platform: "goja",
		Scope:    "s3",
	}

	r1 := handleOne(t, c, cmd)
	assert.Empty(t, r1.Exception)
	assert.Equal(t, "1", r1.Evaluation)

	mLoc := locator.FromPath("/m.js")
	hashBefore := c.Hash(mLoc)
	require.NotNil(t, hashBefore)

	require.NoError(t, afero.WriteFile(fs, "/m.js", []byte("export default 2;\n"), 0o644))
	c.Invalidate(mLoc)

	hashAfter := c.Hash(mLoc)
	require.NotNil(t, hashAfter)
	assert.NotEqual(t, *hashBefore, *hashAfter, "hash must change once the file's content changes")

	r2 := handleOne(t, c, cmd)
	assert.Empty(t, r2.Exception)
	assert.Equal(t, "2", r2.Evaluation, "a re-evaluated importer must observe the new default export")
}

// Scenario 4: the projected import specifier a goja session's imports
// array is built from matches the module's own locator path, so the
// in-process "direct injection" short-circuit actually resolves to the
// right module.
func TestHandleImportRewriting(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lib/util.js", []byte("export const value = 42;\n"), 0o644))
	c := newTestCore(t, fs)

	parent := locator.FromPath("/app/main.js")
	r := handleOne(t, c, protocol.Command{
		Source:   `import { value } from "../lib/util.js"; value;`,
		Locator:  parent.String(),
		Platform: "goja",
		Scope:    "s4",
	})
	assert.Empty(t, r.Exception)
	assert.Equal(t, "42", r.Evaluation)
}

// A dynamic `metaresolve("./data.js")` form resolves relative to the
// command's own locator and evaluates to the projected specifier.
func TestHandleDynamicMetaResolveForm(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/assets/data.js", []byte("export default \"payload\";\n"), 0o644))
	c := newTestCore(t, fs)

	parent := locator.FromPath("/assets/main.js")
	r := handleOne(t, c, protocol.Command{
		Source:   `metaresolve("./data.js");`,
		Locator:  parent.String(),
		Platform: "goja",
		Scope:    "s5",
	})
	assert.Empty(t, r.Exception)
	assert.NotEmpty(t, r.Evaluation)
}

// Scenario 6: a cyclic import graph must still terminate and produce a
// stable hash, rather than recursing forever.
func TestHandleCycleSafety(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.js", []byte(`import "./b.js";`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b.js", []byte(`import "./a.js";`), 0o644))
	c := newTestCore(t, fs)

	aLoc := locator.FromPath("/a.js")
	h1 := c.Hash(aLoc)
	require.NotNil(t, h1)
	h2 := c.Hash(aLoc)
	require.NotNil(t, h2)
	assert.Equal(t, *h1, *h2, "hashing a cyclic graph twice must be stable")
}

func TestHandleParseFailureReportsParseFailureKind(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	r := handleOne(t, c, protocol.Command{Source: "const = ;", Platform: "goja", Scope: "s6"})
	assert.Contains(t, r.Err, "parse_failure")
}

func TestHandleUnknownPlatformReportsTransportFailureKind(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	r := handleOne(t, c, protocol.Command{Source: "1;", Platform: "nope", Scope: "s7"})
	assert.Contains(t, r.Err, "evaluator_transport_failure")
}

func TestHandleUnresolvableLocatorReportsResolveFailureKind(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	r := handleOne(t, c, protocol.Command{Source: "1;", Locator: "not-a-url", Platform: "goja", Scope: "s8"})
	assert.Contains(t, r.Err, "resolve_failure")
}

func TestHandleUnresolvableBareImportReportsResolveFailureKind(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	parent := locator.FromPath("/app/main.js")
	r := handleOne(t, c, protocol.Command{
		Source:   `import x from "lodash"; x;`,
		Locator:  parent.String(),
		Platform: "goja",
		Scope:    "s9",
	})
	assert.Contains(t, r.Err, "resolve_failure")
}

func TestEvaluatorForReusesSessionAcrossCalls(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	ev1, err := c.evaluatorFor("goja", "shared")
	require.NoError(t, err)
	ev2, err := c.evaluatorFor("goja", "shared")
	require.NoError(t, err)
	assert.Same(t, ev1, ev2)

	ev3, err := c.evaluatorFor("goja", "other")
	require.NoError(t, err)
	assert.NotSame(t, ev1, ev3)
}

func TestCloseTearsDownEverySession(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())

	handleOne(t, c, protocol.Command{Source: "1;", Platform: "goja", Scope: "closeme"})
	assert.NoError(t, c.Close())
}

func TestTagIsStablePerInstance(t *testing.T) {
	t.Parallel()
	c := newTestCore(t, afero.NewMemMapFs())
	assert.NotEmpty(t, c.Tag())
	assert.Equal(t, c.Tag(), c.Tag())
}
