package reconcile

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
)

// yearMonthRE validates the YYYY-MM slice taken from reporting dates.
var yearMonthRE = regexp.MustCompile(`^\d{4}-\d{2}$`)

// prepareECB normalises one raw ECB frame: columns are renamed into the
// ESMA vocabulary, the source marker is stamped and the temporal dedup key
// is derived. The rename happens first so the date lookup sees ESMA names.
func (s *Session) prepareECB(f *frame.Frame, pool string) *frame.Frame {
	if f.Empty() {
		return f
	}
	f.Rename(s.template.ECBToESMA)
	f.SetConst(colSource, sourceECB)
	addDateYM(f, pool)
	return f
}

// prepareESMA normalises one stage-1 ESMA frame.
func (s *Session) prepareESMA(f *frame.Frame, pool string) *frame.Frame {
	if f.Empty() {
		return f
	}
	f.SetConst(colSource, sourceESMA)
	addDateYM(f, pool)
	return f
}

// addDateYM derives the year-month dedup column from the reporting date,
// preferring the ESMA date column and falling back to the legacy ECB one.
// Rows without either date get a null key and never participate in dedup.
func addDateYM(f *frame.Frame, pool string) {
	dateCol := f.Col(colDate)
	if dateCol < 0 {
		dateCol = f.Col(colECBDate)
	}
	if dateCol < 0 {
		f.SetConst(colDateYM, "")
		return
	}

	f.SetConst(colDateYM, "")
	ymCol := f.Col(colDateYM)
	warned := false
	for _, row := range f.Rows {
		ym := yearMonth(row[dateCol])
		row[ymCol] = ym
		if !warned && ym != "" && !yearMonthRE.MatchString(ym) {
			zap.L().Warn("reconcile: reporting date not in YYYY-MM-DD form, dedup key may be unreliable",
				zap.String("pool", pool),
				zap.String("value", row[dateCol]),
			)
			warned = true
		}
	}
}

// yearMonth slices the leading YYYY-MM out of a date string.
func yearMonth(date string) string {
	if len(date) >= 7 {
		return date[:7]
	}
	return date
}

// obsKey identifies one loan observation for temporal dedup.
func obsKey(loanID, ym string) string {
	return loanID + "|" + ym
}

// observationKeys collects the (loan id, year-month) keys present in a
// prepared frame. A nil map means the frame carries no loan id column and
// dedup must be skipped.
func observationKeys(f *frame.Frame) map[string]bool {
	loanCol := f.Col(colLoanID)
	ymCol := f.Col(colDateYM)
	if loanCol < 0 || ymCol < 0 {
		return nil
	}
	keys := make(map[string]bool, f.Len())
	for _, row := range f.Rows {
		if row[loanCol] == "" {
			continue
		}
		keys[obsKey(row[loanCol], row[ymCol])] = true
	}
	return keys
}

// dropCoveredECBRows removes ECB rows whose observation key also appears
// on the ESMA side. ESMA rows always pass through untouched.
func dropCoveredECBRows(f *frame.Frame, esmaKeys map[string]bool) (*frame.Frame, int) {
	loanCol := f.Col(colLoanID)
	ymCol := f.Col(colDateYM)
	srcCol := f.Col(colSource)
	if loanCol < 0 || ymCol < 0 || srcCol < 0 || len(esmaKeys) == 0 {
		return f, 0
	}
	dropped := 0
	out := f.Filter(func(i int) bool {
		row := f.Rows[i]
		if row[srcCol] != sourceECB || row[loanCol] == "" {
			return true
		}
		if esmaKeys[obsKey(row[loanCol], row[ymCol])] {
			dropped++
			return false
		}
		return true
	})
	return out, dropped
}
