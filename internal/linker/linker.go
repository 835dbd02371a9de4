package linker

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
)

// collateralSuffix disambiguates collateral columns whose names collide
// with loan-side columns after the join.
const collateralSuffix = "_collateral"

// PairStats reports one linked pair.
type PairStats struct {
	UERows           int    `yaml:"ue_rows"`
	CollateralRows   int    `yaml:"collateral_rows"`
	MergedRows       int    `yaml:"merged_rows"`
	MergedCols       int    `yaml:"merged_cols"`
	MatchedRows      int    `yaml:"matched_rows"`
	UnmatchedRows    int    `yaml:"unmatched_rows"`
	DuplicateKeyRows int    `yaml:"duplicate_key_rows"`
	Keys             string `yaml:"keys"`
	Filename         string `yaml:"filename"`
	AssetType        string `yaml:"asset_type"`
}

// LinkPair left-joins a UE frame with its collateral frame. Every UE row
// is preserved; unmatched rows carry nulls in the collateral columns.
func LinkPair(ue, collateral *frame.Frame) (*frame.Frame, *PairStats, error) {
	ueKey, collKey, err := DetectJoinKeys(ue.Columns, collateral.Columns)
	if err != nil {
		return nil, nil, err
	}

	stats := &PairStats{
		UERows:         ue.Len(),
		CollateralRows: collateral.Len(),
		Keys:           ueKey + "=" + collKey,
	}

	// Upstream files mix numeric-looking and string-looking identifiers
	// for the same logical key; both sides are coerced to one textual form
	// so the join cannot miss purely on representation.
	coerceKeyColumn(ue, ueKey)
	coerceKeyColumn(collateral, collKey)

	collateral = collateral.Select(keepColumns(collateral.Columns, columnsToDrop(collateral.Columns)))

	// Index collateral rows by key. One-to-one is expected; a duplicate
	// collateral key would multiply rows under a plain left join, so only
	// the first row per key is joined and the duplicates are counted.
	index := make(map[string]int, collateral.Len())
	collKeyIdx := collateral.Col(collKey)
	for i, row := range collateral.Rows {
		k := row[collKeyIdx]
		if k == "" {
			continue
		}
		if _, exists := index[k]; exists {
			stats.DuplicateKeyRows++
			continue
		}
		index[k] = i
	}
	if stats.DuplicateKeyRows > 0 {
		zap.L().Warn("linker: duplicate collateral keys, joining first occurrence",
			zap.String("keys", stats.Keys),
			zap.Int("duplicates", stats.DuplicateKeyRows),
		)
	}

	// Output schema: UE columns, then collateral columns with collisions
	// suffixed. The join key columns keep their distinct names.
	outCols := append([]string(nil), ue.Columns...)
	ueHas := make(map[string]bool, len(ue.Columns))
	for _, c := range ue.Columns {
		ueHas[c] = true
	}
	collOut := make([]string, len(collateral.Columns))
	for i, c := range collateral.Columns {
		name := c
		if ueHas[c] {
			name = c + collateralSuffix
		}
		collOut[i] = name
		outCols = append(outCols, name)
	}

	merged := frame.New(outCols...)
	ueKeyIdx := ue.Col(ueKey)
	mergedCollKeyCol := collOut[collKeyIdx]
	for _, ueRow := range ue.Rows {
		row := make([]string, len(outCols))
		copy(row, ueRow)
		if ci, ok := index[ueRow[ueKeyIdx]]; ok {
			copy(row[len(ue.Columns):], collateral.Rows[ci])
		}
		merged.Rows = append(merged.Rows, row)
	}

	keyCol := merged.Col(mergedCollKeyCol)
	for _, row := range merged.Rows {
		if row[keyCol] != "" {
			stats.MatchedRows++
		}
	}
	stats.MergedRows = merged.Len()
	stats.MergedCols = len(merged.Columns)
	stats.UnmatchedRows = stats.MergedRows - stats.MatchedRows

	return merged, stats, nil
}

// coerceKeyColumn canonicalises a key column's textual form: whitespace
// trimmed, integer-valued floats collapsed ("123.0" → "123").
func coerceKeyColumn(f *frame.Frame, name string) {
	c := f.Col(name)
	if c < 0 {
		return
	}
	for _, row := range f.Rows {
		if c < len(row) {
			row[c] = coerceKey(row[c])
		}
	}
}

func coerceKey(v string) string {
	v = strings.TrimSpace(v)
	dot := strings.IndexByte(v, '.')
	if dot <= 0 {
		return v
	}
	// Collapse only pure numeric values with an all-zero fraction.
	intPart, frac := v[:dot], v[dot+1:]
	if frac == "" || strings.Trim(frac, "0") != "" {
		return v
	}
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return v
		}
	}
	return intPart
}

func keepColumns(columns, drop []string) []string {
	dropSet := make(map[string]bool, len(drop))
	for _, d := range drop {
		dropSet[d] = true
	}
	var out []string
	for _, c := range columns {
		if !dropSet[c] {
			out = append(out, c)
		}
	}
	return out
}
