package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterWrite(t *testing.T) {
	var buf bytes.Buffer
	err := NewCSVExporter().Write(&buf, Dataset{
		Headers: []string{"day", "room", "task"},
		Rows: []map[string]string{
			{"day": "1", "room": "hall", "task": "math-10"},
			{"day": "2", "task": "chem, lab"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "day,room,task\n1,hall,math-10\n2,,\"chem, lab\"\n", buf.String())
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	err := NewCSVExporter().Write(&bytes.Buffer{}, Dataset{})
	assert.Error(t, err)
}

func TestCSVExporterDelimiter(t *testing.T) {
	var buf bytes.Buffer
	exporter := &CSVExporter{Comma: ';'}
	require.NoError(t, exporter.Write(&buf, Dataset{Headers: []string{"a", "b"}, Rows: []map[string]string{{"a": "1", "b": "2"}}}))
	assert.Equal(t, "a;b\n1;2\n", buf.String())
}
