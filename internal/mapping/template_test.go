package mapping

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTemplate(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Mapping")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, h := range []string{colESMACode, colESMAName, colECBCode} {
		header.AddCell().Value = h
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().Value = v
		}
	}

	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadTemplateBuildsBothDirections(t *testing.T) {
	path := writeTemplate(t, [][]string{
		{"RREL6", "Data Cut-Off Date", "AR1"},
		{"RREL3", "Original Underlying Exposure Identifier", "AR3"},
		{"RREL90", "No counterpart", ""},
	})

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)

	assert.Equal(t, "AR1", tpl.ESMAToECB["RREL6"])
	assert.Equal(t, "RREL6", tpl.ECBToESMA["AR1"])
	assert.Equal(t, "RREL3", tpl.ECBToESMA["AR3"])
	_, hasUnmapped := tpl.ESMAToECB["RREL90"]
	assert.False(t, hasUnmapped, "rows without an ECB code are discarded")
}

func TestLoadTemplateNewMarkerWinsTieBreak(t *testing.T) {
	path := writeTemplate(t, [][]string{
		{"RREL5", "Old Pool Identifier", "AR2"},
		{"RREL4", "New Pool Identifier", "AR2"},
		{"RREL7", "Another Old Field", "AR2"},
	})

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)

	assert.Equal(t, "RREL4", tpl.ECBToESMA["AR2"])
	assert.Equal(t, "AR2", tpl.ESMAToECB["RREL5"])
	assert.Equal(t, "AR2", tpl.ESMAToECB["RREL7"])
}

func TestLoadTemplateMissingColumn(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Mapping")
	require.NoError(t, err)
	header := sheet.AddRow()
	header.AddCell().Value = colESMACode
	header.AddCell().Value = colESMAName
	sheet.AddRow().AddCell().Value = "RREL6"

	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, f.Save(path))

	_, err = LoadTemplate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestLoadTemplateMissingFile(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.Error(t, err)
}
