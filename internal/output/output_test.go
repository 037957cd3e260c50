package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestVerdictColor(t *testing.T) {
	assert.NotEmpty(t, VerdictColor("pass"))
	assert.NotEmpty(t, VerdictColor("partial"))
	assert.NotEmpty(t, VerdictColor("fail"))
	assert.Equal(t, "unknown", VerdictColor("unknown"))
}

func TestSeverityColor(t *testing.T) {
	assert.NotEmpty(t, SeverityColor("critical"))
	assert.NotEmpty(t, SeverityColor("high"))
	assert.NotEmpty(t, SeverityColor("medium"))
	assert.NotEmpty(t, SeverityColor("low"))
	assert.Equal(t, "weird", SeverityColor("weird"))
}

func TestAgreementColor(t *testing.T) {
	assert.NotEmpty(t, AgreementColor(1.0))
	assert.NotEmpty(t, AgreementColor(0.66))
	assert.NotEmpty(t, AgreementColor(0.2))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Name", "Status"})
	require.NotNil(t, table)

	table.Append([]string{"claude", "available"})
	table.Append([]string{"codex", "missing"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "claude") || strings.Contains(result, "CLAUDE"),
		"table output should contain tool names")
	assert.True(t, strings.Contains(result, "codex") || strings.Contains(result, "CODEX"),
		"table output should contain tool names")
}
