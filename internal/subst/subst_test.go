package subst_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tikl-run/tikl/internal/subst"
)

func lookupFor(vals map[string]string) subst.Lookup {
	return func(name string) (string, bool) {
		v, ok := vals[name]
		return v, ok
	}
}

func TestExpandLiteralPercent(t *testing.T) {
	out, err := subst.Expand("100%% done", true, true, lookupFor(nil), "t")
	require.NoError(t, err)
	require.Equal(t, "100% done", out)
}

func TestExpandUnknownNameLeftVerbatim(t *testing.T) {
	out, err := subst.Expand("echo %unknownvar", true, true, lookupFor(nil), "t")
	require.NoError(t, err)
	require.Equal(t, "echo %unknownvar", out)
}

func TestExpandKnownName(t *testing.T) {
	out, err := subst.Expand("cc %s -o %t", true, true, lookupFor(map[string]string{
		"s": "input.c",
		"t": "/tmp/out",
	}), "t")
	require.NoError(t, err)
	require.Equal(t, "cc input.c -o /tmp/out", out)
}

func TestExpandDisabledReturnsVerbatim(t *testing.T) {
	out, err := subst.Expand("%s %(basename %s)", false, true, lookupFor(map[string]string{"s": "a/b.c"}), "t")
	require.NoError(t, err)
	require.Equal(t, "%s %(basename %s)", out)
}

func TestBasenameHelper(t *testing.T) {
	out, err := subst.Expand("%(basename %s)", true, true, lookupFor(map[string]string{"s": "/a/b/c.txt"}), "t")
	require.NoError(t, err)
	require.Equal(t, "c.txt", out)
}

func TestBasenameHelperWithSuffix(t *testing.T) {
	out, err := subst.Expand(`%(basename %s ".txt")`, true, true, lookupFor(map[string]string{"s": "/a/b/c.txt"}), "t")
	require.NoError(t, err)
	require.Equal(t, "c", out)
}

func TestDirnameHelper(t *testing.T) {
	out, err := subst.Expand("%(dirname %s)", true, true, lookupFor(map[string]string{"s": "/a/b/c.txt"}), "t")
	require.NoError(t, err)
	require.Equal(t, "/a/b", out)
}

func TestUnknownHelperIsFatal(t *testing.T) {
	_, err := subst.Expand("%(frobnicate %s)", true, true, lookupFor(map[string]string{"s": "x"}), "t")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown placeholder function")
}

func TestHelpersDisabledStillExpandsNamesInsideLiteralParens(t *testing.T) {
	// With helpers disabled, "%(" is no longer special, but %NAME lookups
	// still fire on whatever text happens to follow.
	out, err := subst.Expand("%(basename %s)", true, false, lookupFor(map[string]string{"s": "a"}), "t")
	require.NoError(t, err)
	require.Equal(t, "%(basename a)", out)
}

func TestUnterminatedHelperCallIsFatal(t *testing.T) {
	_, err := subst.Expand("%(basename %s", true, true, lookupFor(map[string]string{"s": "a"}), "t")
	require.Error(t, err)
}

func TestTooManyHelperArgumentsIsFatal(t *testing.T) {
	_, err := subst.Expand(`%(basename "a" "b" "c")`, true, true, lookupFor(nil), "t")
	require.Error(t, err)
}
