package vars

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_NoReferencesReturnsTextUnchanged(t *testing.T) {
	c := New()
	got := c.Expand("plain text, no braces")
	assert.Equal(t, "plain text, no braces", got.Expanded)
	assert.Empty(t, got.Variables)
}

func TestExpand_LoopVariable(t *testing.T) {
	c := New()
	c.SetLoop(3)
	got := c.Expand("{{!LOOP}}")
	assert.Equal(t, strconv.Itoa(c.GetLoop()), got.Expanded)
}

func TestExpand_UnknownNameExpandsEmpty(t *testing.T) {
	c := New()
	got := c.Expand("before{{nosuchvar}}after")
	assert.Equal(t, "beforeafter", got.Expanded)
}

func TestExpand_SinglePassNoRecursiveReexpansion(t *testing.T) {
	c := New()
	c.Set("OUTER", "{{INNER}}")
	c.Set("INNER", "leaf")
	got := c.Expand("{{OUTER}}")
	assert.Equal(t, "{{INNER}}", got.Expanded)
}

func TestExpand_DedupesRepeatedReferences(t *testing.T) {
	c := New()
	got := c.Expand("{{!VAR1}}-{{!VAR1}}-{{!VAR2}}")
	names := map[string]int{}
	for _, ref := range got.Variables {
		names[ref.Name]++
	}
	assert.Equal(t, 1, names["!VAR1"])
	assert.Equal(t, 1, names["!VAR2"])
}

func TestSet_UserVariablePreservesOriginalCaseOnReport(t *testing.T) {
	c := New()
	res := c.Set("MyVar", "hello")
	require.True(t, res.OK)
	custom := c.GetCustomVariables()
	assert.Equal(t, "hello", custom["MyVar"])

	// Lookup stays case-insensitive.
	v, ok := c.Get("myvar")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestSet_UnknownSystemNameIsRejected(t *testing.T) {
	c := New()
	res := c.Set("!NOTREAL", "x")
	assert.False(t, res.OK)
	_, ok := c.Get("!NOTREAL")
	assert.False(t, ok)
}

func TestSet_ReservedSystemNameAccepted(t *testing.T) {
	c := New()
	res := c.Set("!TIMEOUT_TAG", "10")
	assert.True(t, res.OK)
	v, ok := c.Get("!TIMEOUT_TAG")
	require.True(t, ok)
	assert.Equal(t, "10", v)
}

func TestSet_FolderFamilyPrefixAccepted(t *testing.T) {
	c := New()
	res := c.Set("!FOLDER_DOWNLOAD", "/tmp")
	assert.True(t, res.OK)
}

func TestSetSystemTrusted_BypassesReservedCheck(t *testing.T) {
	c := New()
	c.SetSystemTrusted("!CMDLINE_EXITCODE", "0")
	v, ok := c.Get("!CMDLINE_EXITCODE")
	require.True(t, ok)
	assert.Equal(t, "0", v)
}

func TestIncrementLoop_IncrementsBothCounterAndLoopVar(t *testing.T) {
	c := New()
	n := c.IncrementLoop()
	assert.Equal(t, 1, n)
	v, ok := c.Get("!LOOP")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestExpandNow_DefaultFormat(t *testing.T) {
	c := New()
	v, ok := c.Get("!NOW")
	require.True(t, ok)
	assert.Len(t, v, len("2006-01-02 15:04:05"))
}

func TestExpandNow_CustomFormatTokens(t *testing.T) {
	c := New()
	v, ok := c.Get("!NOW:yyyymmdd_hhnnss")
	require.True(t, ok)
	assert.Len(t, v, len("20060102_150405"))
}

func TestImportVariables_RestoresSystemAndUserNamespaces(t *testing.T) {
	c := New()
	c.ImportVariables(
		map[string]string{"!LOOP": "4", "!EXTRACT": "a[EXTRACT]b"},
		map[string]string{"MyVar": "hi"},
	)
	assert.Equal(t, 4, c.GetLoop())
	v, ok := c.Get("!EXTRACT")
	require.True(t, ok)
	assert.Equal(t, "a[EXTRACT]b", v)
	custom := c.GetCustomVariables()
	assert.Equal(t, "hi", custom["MyVar"])
}

func TestReset_ClearsEverything(t *testing.T) {
	c := New()
	c.Set("MyVar", "x")
	c.SetLoop(5)
	c.Reset()
	assert.Equal(t, 0, c.GetLoop())
	_, ok := c.Get("MyVar")
	assert.False(t, ok)
}

func TestExtractRefs_CapturesOffsetsAndSystemFlag(t *testing.T) {
	refs := ExtractRefs("x={{!VAR1}} y={{custom}}")
	require.Len(t, refs, 2)
	assert.True(t, refs[0].IsSystem)
	assert.Equal(t, "!VAR1", refs[0].Name)
	assert.Equal(t, "{{!VAR1}}", refs[0].Original)
	assert.False(t, refs[1].IsSystem)
}
