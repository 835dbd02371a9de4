// Package linker implements stage 1: pairing each loan-level (UE) export
// with its collateral export and left-joining the two into one file per
// pool snapshot.
package linker

import (
	"regexp"
	"strings"
)

// Export filenames follow
// 1_<ASSET_TYPE>_<CATEGORY>_<IDENTIFIER>_<DATE>_<SEQUENCE>.csv, e.g.
// 1_RMB_UE_213800WQJJDCAN4BCO57N201901_2021-04-30_29907.csv.
var exportNameRE = regexp.MustCompile(`^1_(\w+)_(UE|Collateral)_(.+)_(\d{4}-\d{2}-\d{2})_(\d+)\.csv$`)

// ExportName holds the components encoded in an export filename.
type ExportName struct {
	AssetType  string
	Category   string
	Identifier string
	Date       string
	Sequence   string
	Filename   string
}

// ParseExportName decodes an export filename. ok is false when the name
// does not follow the export grammar.
func ParseExportName(filename string) (ExportName, bool) {
	m := exportNameRE.FindStringSubmatch(filename)
	if m == nil {
		return ExportName{}, false
	}
	return ExportName{
		AssetType:  m[1],
		Category:   m[2],
		Identifier: m[3],
		Date:       m[4],
		Sequence:   m[5],
		Filename:   filename,
	}, true
}

// MergedName derives the linked output filename from the UE filename by
// substituting the category token.
func MergedName(ueFilename string) string {
	return strings.Replace(ueFilename, "_UE_", "_UE_Collateral_", 1)
}

// Pair is a UE export and the collateral export that shares its asset
// type, identifier and date.
type Pair struct {
	UE         ExportName
	Collateral ExportName
}

type pairKey struct {
	assetType  string
	identifier string
	date       string
}

// MatchPairs pairs UE files with collateral files sharing
// (asset type, identifier, date). Unmatched files on either side are
// simply not paired; they are reported by the batch driver.
func MatchPairs(names []string) []Pair {
	collateral := make(map[pairKey]ExportName)
	var ues []ExportName

	for _, name := range names {
		parsed, ok := ParseExportName(name)
		if !ok {
			continue
		}
		switch parsed.Category {
		case "UE":
			ues = append(ues, parsed)
		case "Collateral":
			collateral[pairKey{parsed.AssetType, parsed.Identifier, parsed.Date}] = parsed
		}
	}

	var pairs []Pair
	for _, ue := range ues {
		if coll, ok := collateral[pairKey{ue.AssetType, ue.Identifier, ue.Date}]; ok {
			pairs = append(pairs, Pair{UE: ue, Collateral: coll})
		}
	}
	return pairs
}
