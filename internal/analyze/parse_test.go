package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImports(t *testing.T) {
	t.Parallel()

	t.Run("bare", func(t *testing.T) {
		t.Parallel()
		src := `import "./x.js";`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Imports, 1)
		assert.Equal(t, "./x.js", a.Imports[0].Specifier)
		assert.Equal(t, "", a.Imports[0].DefaultName)

		sr := a.Imports[0].SpecifierRange
		assert.Equal(t, `"./x.js"`, src[sr.Start:sr.End])
	})

	t.Run("default", func(t *testing.T) {
		t.Parallel()
		a, err := Parse(`import p from "./p.js";`)
		require.NoError(t, err)
		require.Len(t, a.Imports, 1)
		assert.Equal(t, "p", a.Imports[0].DefaultName)
		assert.Equal(t, "./p.js", a.Imports[0].Specifier)
	})

	t.Run("namespace", func(t *testing.T) {
		t.Parallel()
		a, err := Parse(`import * as ns from "./p.js";`)
		require.NoError(t, err)
		require.Len(t, a.Imports, 1)
		assert.True(t, a.Imports[0].Names.HasNamespace)
		assert.Equal(t, "ns", a.Imports[0].Names.Namespace)
	})

	t.Run("named with alias", func(t *testing.T) {
		t.Parallel()
		a, err := Parse(`import {a, b as c} from "./p.js";`)
		require.NoError(t, err)
		require.Len(t, a.Imports, 1)
		assert.True(t, a.Imports[0].Names.HasNamed)
		assert.Equal(t, map[string]string{"a": "a", "b": "c"}, a.Imports[0].Names.Named)
	})

	t.Run("default plus named", func(t *testing.T) {
		t.Parallel()
		a, err := Parse(`import p, {a} from "./p.js";`)
		require.NoError(t, err)
		require.Len(t, a.Imports, 1)
		assert.Equal(t, "p", a.Imports[0].DefaultName)
		assert.Equal(t, map[string]string{"a": "a"}, a.Imports[0].Names.Named)
	})

	t.Run("ignores string lookalikes", func(t *testing.T) {
		t.Parallel()
		a, err := Parse("const s = \"import x from 'y.js';\";")
		require.NoError(t, err)
		assert.Len(t, a.Imports, 0)
	})
}

func TestParseExports(t *testing.T) {
	t.Parallel()

	t.Run("default expression", func(t *testing.T) {
		t.Parallel()
		src := `export default 1;`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Exports, 1)
		assert.Equal(t, ExportDefault, a.Exports[0].Kind)
		assert.Equal(t, "export default ", a.Exports[0].Range.Slice(src))
	})

	t.Run("named declaration keeps declaration range untouched", func(t *testing.T) {
		t.Parallel()
		src := `export const x = 1;`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Exports, 1)
		assert.Equal(t, ExportNamed, a.Exports[0].Kind)
		assert.Equal(t, "export ", a.Exports[0].Range.Slice(src))
	})

	t.Run("named list elided whole", func(t *testing.T) {
		t.Parallel()
		src := `export {a, b};`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Exports, 1)
		assert.Equal(t, src, a.Exports[0].Range.Slice(src))
	})

	t.Run("export all", func(t *testing.T) {
		t.Parallel()
		src := `export * from "./other.js";`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Exports, 1)
		assert.Equal(t, ExportAll, a.Exports[0].Kind)
		assert.Equal(t, src, a.Exports[0].Range.Slice(src))
	})
}

func TestParseDynamics(t *testing.T) {
	t.Parallel()

	t.Run("dynamic import literal", func(t *testing.T) {
		t.Parallel()
		src := `fetch(() => import("./a.js"));`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Dynamics, 1)
		d := a.Dynamics[0]
		assert.Equal(t, DynamicImport, d.Kind)
		assert.Equal(t, "./a.js", d.Value)
		assert.Equal(t, `"./a.js"`, d.ModuleRange.Slice(src))
		assert.Equal(t, d.ModuleRange, d.ScriptRange)
	})

	t.Run("dynamic import non-literal ignored", func(t *testing.T) {
		t.Parallel()
		a, err := Parse(`import(path);`)
		require.NoError(t, err)
		assert.Len(t, a.Dynamics, 0)
	})

	t.Run("metaresolve", func(t *testing.T) {
		t.Parallel()
		src := `const u = metaresolve("./a.bin");`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Dynamics, 1)
		d := a.Dynamics[0]
		assert.Equal(t, DynamicMetaResolve, d.Kind)
		assert.Equal(t, "./a.bin", d.Value)
		assert.Equal(t, `metaresolve("./a.bin")`, d.ModuleRange.Slice(src))
		assert.Equal(t, d.ModuleRange, d.ScriptRange)
	})

	t.Run("new URL with meta_url", func(t *testing.T) {
		t.Parallel()
		src := `fetch(new URL("./a.bin", meta_url));`
		a, err := Parse(src)
		require.NoError(t, err)
		require.Len(t, a.Dynamics, 1)
		d := a.Dynamics[0]
		assert.Equal(t, DynamicNewURL, d.Kind)
		assert.Equal(t, "./a.bin", d.Value)
		assert.Equal(t, `"./a.bin"`, d.ModuleRange.Slice(src))
		assert.Equal(t, `"./a.bin", meta_url`, d.ScriptRange.Slice(src))
	})

	t.Run("new URL with absolute url is not a dynamic form", func(t *testing.T) {
		t.Parallel()
		a, err := Parse(`new URL("https://example.com/x", meta_url);`)
		require.NoError(t, err)
		assert.Len(t, a.Dynamics, 0)
	})
}

func TestSpecifierSet(t *testing.T) {
	t.Parallel()
	src := `
import a from "./a.js";
import b from "./a.js";
fetch(import("./b.js"));
`
	a, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"./a.js", "./b.js"}, a.SpecifierSet())
}
