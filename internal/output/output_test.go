package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/strand/internal/models"
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
	assert.NotEmpty(t, StatusColor("ready"))
	assert.NotEmpty(t, StatusColor("in_progress"))
	assert.NotEmpty(t, StatusColor("in_review"))
	assert.NotEmpty(t, StatusColor("blocked"))
	assert.NotEmpty(t, StatusColor("completed"))
	assert.Equal(t, "unknown", StatusColor("unknown"))
}

func TestPhaseColor(t *testing.T) {
	for _, phase := range []models.Phase{models.PhaseTodo, models.PhaseCoding, models.PhaseReview, models.PhaseMerged} {
		assert.Contains(t, PhaseColor(phase), string(phase))
	}
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Branch", "Phase"})
	require.NotNil(t, table)

	table.Append([]string{"feature-auth", "coding"})
	table.Append([]string{"feature-api", "review"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "feature-auth"),
		"table output should contain branch names")
	assert.True(t, strings.Contains(result, "feature-api"),
		"table output should contain branch names")
}
