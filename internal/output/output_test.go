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

func TestStatusColor(t *testing.T) {
	assert.NotEmpty(t, StatusColor("pending"))
	assert.NotEmpty(t, StatusColor("running"))
	assert.NotEmpty(t, StatusColor("completed"))
	assert.NotEmpty(t, StatusColor("success"))
	assert.NotEmpty(t, StatusColor("failed"))
	assert.NotEmpty(t, StatusColor("error"))
	assert.Equal(t, "unknown", StatusColor("unknown"))
}

func TestSeverityColor(t *testing.T) {
	assert.NotEmpty(t, SeverityColor("high"))
	assert.NotEmpty(t, SeverityColor("medium"))
	assert.NotEmpty(t, SeverityColor("low"))
	assert.Equal(t, "info", SeverityColor("info"))
}

func TestPassColor(t *testing.T) {
	yes, no := true, false
	assert.Contains(t, PassColor(&yes), "pass")
	assert.Contains(t, PassColor(&no), "fail")
	assert.Equal(t, "-", PassColor(nil))
}

func TestHealthColor(t *testing.T) {
	assert.NotEmpty(t, HealthColor(90))
	assert.NotEmpty(t, HealthColor(60))
	assert.NotEmpty(t, HealthColor(30))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Name", "Status"})
	require.NotNil(t, table)

	table.Append([]string{"sess-1", "completed"})
	table.Append([]string{"sess-2", "running"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "sess-1") || strings.Contains(result, "SESS-1"),
		"table output should contain session ids")
	assert.True(t, strings.Contains(result, "sess-2") || strings.Contains(result, "SESS-2"),
		"table output should contain session ids")
}
