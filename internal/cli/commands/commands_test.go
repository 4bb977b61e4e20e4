package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/relstack-labs/relq/internal/engine"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *engine.Result {
	return &engine.Result{
		Schema: plan.NewSchema(
			plan.Column{Name: "a", Type: plan.TypeInt},
			plan.Column{Name: "b", Type: plan.TypeString},
		),
		Rows: []plan.Row{
			{int64(1), "x"},
			{int64(2), nil},
		},
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"10", "2.5", "true", "false", "null", "hello", "007a"})
	require.NoError(t, err)
	assert.Equal(t, []plan.Value{
		int64(10), 2.5, true, false, nil, "hello", "007a",
	}, params)
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, sampleResult(), "csv"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a,b", lines[0])
	assert.Equal(t, "1,x", lines[1])
	assert.Equal(t, "2,NULL", lines[2])
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, sampleResult(), "json"))
	assert.Contains(t, buf.String(), `"a": 1`)
	assert.Contains(t, buf.String(), `"b": null`)
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	res := &engine.Result{Schema: plan.NewSchema(plan.Column{Name: "a", Type: plan.TypeInt})}
	require.NoError(t, renderResult(&buf, res, "table"))
	assert.Contains(t, buf.String(), "(0 rows)")
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := renderResult(&buf, sampleResult(), "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestEscapeCSV(t *testing.T) {
	assert.Equal(t, "plain", escapeCSV("plain"))
	assert.Equal(t, `"a,b"`, escapeCSV("a,b"))
	assert.Equal(t, `"say ""hi"""`, escapeCSV(`say "hi"`))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f2a8c1d", shortID("3f2a8c1d-9b4e-4f6a-8c2d-1e5f7a9b3c4d"))
	assert.Equal(t, "nodashes", shortID("nodashes"))
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewVersionCommand("9.9.9")
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "relq v9.9.9")
}
