// Package country implements stage 3: regrouping per-pool reconciled files
// by country and concatenating them under a per-country union schema.
package country

import (
	"strings"

	"github.com/sells-group/loantape/internal/frame"
)

// Unknown is the sentinel country for files no detection rule resolves.
const Unknown = "UNKNOWN"

// ndPrefix marks "no data" placeholder values in regulatory templates.
const ndPrefix = "ND"

// detectRule extracts a candidate country code from one column. Rules run
// in a fixed priority order over a row sample; the first syntactically
// valid code wins. The order encodes data quality: a clean ISO-style field
// beats a looser regional-code field beats an identifier-derived guess.
type detectRule struct {
	name    string
	column  string
	extract func(value string) string
}

var detectRules = []detectRule{
	{"borrower_country", "RREL81", codeFromCountry},
	{"property_country", "RREL84", codeFromCountry},
	{"collateral_region", "RREC6", codeFromRegion},
	{"borrower_region", "RREL11", codeFromRegionNoND},
	{"legacy_region", "AR129", codeFromRegionNoND},
	{"npl_borrower_country", "NPEL20", codeFromCountry},
	{"npl_property_country", "NPEL23", codeFromCountry},
}

// codeFromCountry accepts only a bare two-letter value. Country fields
// carry no NUTS codes; anything longer is malformed and must fall through
// to the next rule rather than be truncated into a wrong country.
func codeFromCountry(value string) string {
	value = strings.TrimSpace(value)
	if len(value) != 2 || !isLetter(value[0]) || !isLetter(value[1]) {
		return ""
	}
	return strings.ToUpper(value)
}

// codeFromRegion takes the leading two letters of a country or NUTS-style
// region value ("DE" → DE, "FRB1" → FR).
func codeFromRegion(value string) string {
	value = strings.TrimSpace(value)
	if len(value) < 2 || !isLetter(value[0]) || !isLetter(value[1]) {
		return ""
	}
	return strings.ToUpper(value[:2])
}

// codeFromRegionNoND is codeFromRegion with "no data" placeholders
// (ND1, ND4 and friends) rejected before extraction.
func codeFromRegionNoND(value string) string {
	if strings.HasPrefix(strings.TrimSpace(value), ndPrefix) {
		return ""
	}
	return codeFromRegion(value)
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// Pool identifier conventions that embed the country at a fixed offset
// (e.g. RMBMBE... → BE).
const (
	poolIDCountryOffset = 4
	poolIDCountryEnd    = 6
)

var poolIDPrefixes = []string{"RMBM", "RMBS"}

// codeFromPoolID extracts the country embedded in a pool identifier, valid
// only for identifiers following the known prefix conventions.
func codeFromPoolID(poolID string) string {
	for _, prefix := range poolIDPrefixes {
		if strings.HasPrefix(poolID, prefix) && len(poolID) >= poolIDCountryEnd {
			return codeFromRegion(poolID[poolIDCountryOffset:poolIDCountryEnd])
		}
	}
	return ""
}

// Detect resolves the country of one pool file from a sample of its rows,
// falling back to the pool identifier and finally the Unknown sentinel.
func Detect(sample *frame.Frame, poolID string) string {
	for _, rule := range detectRules {
		col := sample.Col(rule.column)
		if col < 0 {
			continue
		}
		for _, row := range sample.Rows {
			if col >= len(row) || row[col] == "" {
				continue
			}
			if code := rule.extract(row[col]); code != "" {
				return code
			}
		}
	}
	if code := codeFromPoolID(poolID); code != "" {
		return code
	}
	return Unknown
}
