package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Daftar Pengajuan",
		Headers: []string{"NIM", "Nama", "Status"},
		Rows: [][]string{
			{"2101001", "Siti Aminah", "VALIDATED"},
			{"2101002", "Budi"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestCSVExporterPadsShortRows(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "NIM,Nama,Status\n2101001,Siti Aminah,VALIDATED\n2101002,Budi,\n", string(out))
}

func TestXLSXExporterWritesHeaderBelowTitle(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(xlsxSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Daftar Pengajuan", title)

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 4)
	assert.Equal(t, []string{"NIM", "Nama", "Status"}, rows[2])
	assert.Equal(t, []string{"2101001", "Siti Aminah", "VALIDATED"}, rows[3])
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderersRejectEmptyHeaders(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		r, err := NewRenderer(format)
		require.NoError(t, err)
		_, err = r.Render(Dataset{})
		assert.Error(t, err, format)
	}
}
