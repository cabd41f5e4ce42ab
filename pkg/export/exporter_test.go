package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset() Dataset {
	return Dataset{
		Headers: []string{"Course", "Student", "Status"},
		Rows: []map[string]string{
			{"Course": "IEOR E4004", "Student": "ab1234", "Status": "confirmed"},
			{"Course": "IEOR E4650", "Student": "cd5678"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(rosterDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Course,Student,Status", lines[0])
	assert.Equal(t, "IEOR E4004,ab1234,confirmed", lines[1])
	assert.Equal(t, "IEOR E4650,cd5678,", lines[2])
}

func TestCSVExporterQuotesCommas(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Course", "Title"},
		Rows:    []map[string]string{{"Course": "IEOR E4004", "Title": "Optimization, Models"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"Optimization, Models"`)
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(rosterDataset(), "Assignment Roster")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
	assert.Greater(t, len(out), 500)
}

func TestPDFExporterRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}
