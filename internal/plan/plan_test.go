package plan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tikl-run/tikl/internal/plan"
)

func TestBuildPopulatesBuiltins(t *testing.T) {
	dir := t.TempDir()
	testPath := filepath.Join(dir, "sub", "case.tikl")
	require.NoError(t, os.MkdirAll(filepath.Dir(testPath), 0o755))
	require.NoError(t, os.WriteFile(testPath, []byte("RUN: true\n"), 0o644))

	binRoot := filepath.Join(dir, "bin")
	p, err := plan.Build(testPath, testPath, plan.Roots{BinRoot: binRoot})
	require.NoError(t, err)

	s, ok := p.Builtins.Get("s")
	require.True(t, ok)
	require.Equal(t, testPath, s)

	capS, ok := p.Builtins.Get("S")
	require.True(t, ok)
	require.Equal(t, filepath.Dir(testPath), capS)

	tDir, ok := p.Builtins.Get("T")
	require.True(t, ok)
	require.DirExists(t, tDir)

	tFile, ok := p.Builtins.Get("t")
	require.True(t, ok)
	require.FileExists(t, tFile)
}

func TestIsReservedRejectsBuiltinKeys(t *testing.T) {
	require.True(t, plan.IsReserved("s"))
	require.True(t, plan.IsReserved("T"))
	require.False(t, plan.IsReserved("my_custom_key"))
}

func TestConfigPassFixedPointThenBuiltins(t *testing.T) {
	user := plan.NewTable()
	user.Set("CC", "clang")
	builtins := plan.NewTable()
	builtins.Set("s", "input.c")

	out, err := plan.ConfigPass("%CC %s -O2", user, builtins, "t", 8)
	require.NoError(t, err)
	require.Equal(t, "clang input.c -O2", out)
}

func TestBlobRoundTrip(t *testing.T) {
	builtins := plan.NewTable()
	builtins.Set("s", "foo.c")
	builtins.Set("t", "/tmp/x")

	user := plan.NewTable()
	user.Set("triple", "x86_64-linux")

	blob, err := plan.Blob(builtins, user, "t")
	require.NoError(t, err)

	parsed := plan.ParseBlob(blob)
	v, ok := parsed.Get("triple")
	require.True(t, ok)
	require.Equal(t, "x86_64-linux", v)

	sVal, ok := parsed.Get("s")
	require.True(t, ok)
	require.Equal(t, "foo.c", sVal)
}

func TestParseBlobEmpty(t *testing.T) {
	table := plan.ParseBlob("")
	require.Empty(t, table.Keys())
}
