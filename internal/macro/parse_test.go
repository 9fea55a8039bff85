package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WaitCommand(t *testing.T) {
	pm := Parse("WAIT SECONDS=5", true)
	require.Len(t, pm.Commands, 1)
	cmd := pm.Commands[0]
	assert.Equal(t, CmdWait, cmd.Type)
	v, ok := cmd.ParamValue("SECONDS")
	require.True(t, ok)
	assert.Equal(t, "5", v)
	assert.Empty(t, pm.Errors)
}

func TestParse_PositionalPrompt(t *testing.T) {
	pm := Parse(`PROMPT "Enter your name" !VAR1 DefaultName`, true)
	require.Len(t, pm.Commands, 1)
	cmd := pm.Commands[0]
	assert.Equal(t, CmdPrompt, cmd.Type)
	positionals := cmd.Positionals()
	require.Len(t, positionals, 3)
	assert.Equal(t, "Enter your name", positionals[0].Key)
	assert.Equal(t, "!VAR1", positionals[1].Key)
	assert.Equal(t, "DefaultName", positionals[2].Key)
}

func TestParse_UnknownCommandYieldsError(t *testing.T) {
	pm := Parse("FROBNICATE FOO=1", true)
	require.Len(t, pm.Commands, 1)
	assert.Equal(t, CmdUnknown, pm.Commands[0].Type)
	require.NotEmpty(t, pm.Errors)
}

func TestParse_EmbeddedQuoteRunStaysOneToken(t *testing.T) {
	pm := Parse(`TAG POS=1 TYPE=SELECT FORM=ID:f CONTENT=%"ice cream":%"Apple Pie"`, true)
	require.Len(t, pm.Commands, 1)
	cmd := pm.Commands[0]
	raw, ok := cmd.Param("CONTENT")
	require.True(t, ok)
	assert.Equal(t, `%"ice cream":%"Apple Pie"`, raw)
}

func TestParse_LineCountMatchesSplit(t *testing.T) {
	script := "URL GOTO=http://example.com\n'comment\n\nWAIT SECONDS=1\n"
	pm := Parse(script, true)
	assert.Len(t, pm.Lines, 5)
}

func TestParse_VariableUnionDeduped(t *testing.T) {
	pm := Parse(`SET !VAR1 {{!VAR2}}-{{!VAR2}}-{{!VAR3}}`, true)
	require.Len(t, pm.Commands, 1)
	names := map[string]int{}
	for _, r := range pm.Commands[0].Variables {
		names[r.Name]++
	}
	assert.Equal(t, 1, names["!VAR2"])
	assert.Equal(t, 1, names["!VAR3"])
}

func TestSerializeCommand_RoundTrip(t *testing.T) {
	line := `WAIT SECONDS=5`
	cmd := ParseLine(line, 1)
	got := SerializeCommand(cmd)
	assert.Equal(t, line, got)
}

func TestSerializeMacro_PreservesCommentsAndBlankLines(t *testing.T) {
	script := "'a comment\n\nWAIT SECONDS=1"
	pm := Parse(script, false)
	assert.Equal(t, script, SerializeMacro(pm))
}

func TestValidate_MissingRequiredParams(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"url", "URL"},
		{"tag", "TAG ATTR=foo"},
		{"wait", "WAIT"},
		{"set", "SET onlyone"},
		{"ondialog", "ONDIALOG POS=1"},
		{"onlogin", "ONLOGIN USER=bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pm := Parse(tc.line, true)
			assert.NotEmpty(t, pm.Errors, tc.line)
		})
	}
}

func TestValidate_ValidCommandsProduceNoErrors(t *testing.T) {
	script := `URL GOTO=http://example.com
TAG POS=1 TYPE=INPUT:TEXT ATTR=NAME:q CONTENT=hello
WAIT SECONDS=2
SET !VAR1 hello
ONDIALOG POS=1 BUTTON=OK
ONLOGIN USER=bob PASSWORD=secret`
	pm := Parse(script, true)
	assert.Empty(t, pm.Errors)
}
