// Package mapping loads the two static association tables the reconciler
// depends on: the ESMA template spreadsheet (column rename table) and the
// pool association file (ECB pool id → ESMA pool id).
package mapping

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Template spreadsheet column headers. Only these three are read; rows
// without an ECB code are discarded.
const (
	colESMACode = "FIELD CODE"
	colESMAName = "FIELD NAME"
	colECBCode  = "For info: existing ECB or EBA NPL template field code"
)

// newFieldMarker tags the preferred ESMA code when several map to the same
// ECB code.
const newFieldMarker = "New"

// Template holds the bidirectional column rename tables.
type Template struct {
	ESMAToECB map[string]string
	ECBToESMA map[string]string
}

// LoadTemplate reads the ESMA template spreadsheet and builds both rename
// directions. The ECB→ESMA inverse resolves duplicate ECB codes by
// preferring the ESMA field whose descriptive name contains "New".
func LoadTemplate(path string) (*Template, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: open template")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("mapping: template has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("mapping: template sheet is empty")
	}

	header := sheet.Rows[0]
	idx := make(map[string]int, len(header.Cells))
	for i, cell := range header.Cells {
		idx[strings.TrimSpace(cell.String())] = i
	}
	for _, col := range []string{colESMACode, colESMAName, colECBCode} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("mapping: template missing column %q", col)
		}
	}

	t := &Template{
		ESMAToECB: make(map[string]string),
		ECBToESMA: make(map[string]string),
	}

	cell := func(row *xlsx.Row, col string) string {
		i := idx[col]
		if i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i].String())
	}

	for _, row := range sheet.Rows[1:] {
		esmaCode := cell(row, colESMACode)
		esmaName := cell(row, colESMAName)
		ecbCode := cell(row, colECBCode)
		if esmaCode == "" || ecbCode == "" {
			continue
		}

		t.ESMAToECB[esmaCode] = ecbCode

		if _, exists := t.ECBToESMA[ecbCode]; !exists {
			t.ECBToESMA[ecbCode] = esmaCode
		} else if strings.Contains(esmaName, newFieldMarker) {
			t.ECBToESMA[ecbCode] = esmaCode
		}
	}

	if len(t.ECBToESMA) == 0 {
		return nil, eris.New("mapping: template yielded no usable rows")
	}
	return t, nil
}
