package linker

import (
	"strings"

	"github.com/rotisserie/eris"
)

const (
	loanKeySuffix       = "L2"
	collateralKeySuffix = "C2"
	identifierSuffix    = "C1"
	maxKeyColumnLen     = 6
	keyPrefixLen        = 3
)

// Collateral columns that duplicate loan-side metadata and are dropped
// before the join.
var duplicateMetadataColumns = []string{"Sec_Id", "Pool_Cutoff_Date"}

// DetectJoinKeys finds the loan/collateral key column pair: a UE column
// ending in L2 and a collateral column ending in C2 that share the same
// three-character template prefix (RREL2↔RREC2, NPEL2↔NPEC2, CRPL2↔CRPC2).
// Returns a descriptive error listing the candidates on both sides when no
// pair matches; the join must never fall back to a guess.
func DetectJoinKeys(ueColumns, collateralColumns []string) (string, string, error) {
	ueKeys := keyCandidates(ueColumns, loanKeySuffix)
	collKeys := keyCandidates(collateralColumns, collateralKeySuffix)

	for _, ueKey := range ueKeys {
		if len(ueKey) < keyPrefixLen {
			continue
		}
		prefix := ueKey[:keyPrefixLen]
		for _, collKey := range collKeys {
			if len(collKey) >= keyPrefixLen && collKey[:keyPrefixLen] == prefix {
				return ueKey, collKey, nil
			}
		}
	}

	return "", "", eris.Errorf(
		"linker: cannot detect join keys; UE *%s columns: %v, collateral *%s columns: %v",
		loanKeySuffix, containing(ueColumns, loanKeySuffix),
		collateralKeySuffix, containing(collateralColumns, collateralKeySuffix),
	)
}

func keyCandidates(columns []string, suffix string) []string {
	var out []string
	for _, c := range columns {
		if strings.HasSuffix(c, suffix) && len(c) <= maxKeyColumnLen {
			out = append(out, c)
		}
	}
	return out
}

func containing(columns []string, sub string) []string {
	var out []string
	for _, c := range columns {
		if strings.Contains(c, sub) {
			out = append(out, c)
		}
	}
	return out
}

// columnsToDrop lists the collateral columns removed before the join: loan
// metadata duplicated on both sides and *C1 identifier columns that would
// collide with the loan-side *L1 identifiers.
func columnsToDrop(collateralColumns []string) []string {
	var drop []string
	for _, c := range duplicateMetadataColumns {
		drop = append(drop, c)
	}
	for _, c := range collateralColumns {
		if strings.HasSuffix(c, identifierSuffix) && len(c) <= maxKeyColumnLen {
			drop = append(drop, c)
		}
	}
	return drop
}
