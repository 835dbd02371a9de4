package country

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/loantape/internal/frame"
)

func sampleWith(columns []string, rows ...[]string) *frame.Frame {
	f := frame.New(columns...)
	for _, r := range rows {
		f.AppendRow(r)
	}
	return f
}

func TestDetectPriorityOrder(t *testing.T) {
	// A clean country field beats a conflicting lower-priority NUTS code.
	sample := sampleWith([]string{"RREL81", "RREC6"}, []string{"DE", "FRB1"})
	assert.Equal(t, "DE", Detect(sample, "POOL"))
}

func TestDetectCountryFieldsAreStrict(t *testing.T) {
	// A region-style value in a pure country field is malformed, not a
	// NUTS code to truncate; the next rule resolves instead.
	sample := sampleWith([]string{"RREL81", "RREL84"}, []string{"FRB1", "DE"})
	assert.Equal(t, "DE", Detect(sample, "POOL"))

	sample = sampleWith([]string{"NPEL20", "NPEL23"}, []string{"ITC4", "IT"})
	assert.Equal(t, "IT", Detect(sample, "POOL"))
}

func TestDetectNUTSCodeTruncated(t *testing.T) {
	sample := sampleWith([]string{"RREC6"}, []string{"FRB1"})
	assert.Equal(t, "FR", Detect(sample, "POOL"))
}

func TestDetectSkipsNDPlaceholders(t *testing.T) {
	// ND5 in a no-ND column is a placeholder, not a country; the next rule
	// in priority order wins.
	sample := sampleWith([]string{"RREL11", "NPEL20"}, []string{"ND5", "BE"})
	assert.Equal(t, "BE", Detect(sample, "POOL"))
}

func TestDetectScansPastEmptyRows(t *testing.T) {
	sample := sampleWith([]string{"RREL81"},
		[]string{""},
		[]string{"nl"},
	)
	assert.Equal(t, "NL", Detect(sample, "POOL"))
}

func TestDetectPoolIDFallback(t *testing.T) {
	sample := sampleWith([]string{"unrelated"}, []string{"x"})
	assert.Equal(t, "BE", Detect(sample, "RMBMBE000095100120084"))
	assert.Equal(t, "NL", Detect(sample, "RMBSNL000185100120109"))
}

func TestDetectUnknownSentinel(t *testing.T) {
	sample := sampleWith([]string{"unrelated"}, []string{"x"})
	assert.Equal(t, Unknown, Detect(sample, "549300NOPREFIX"))
	assert.Equal(t, Unknown, Detect(frame.New(), ""))
}

func TestCodeFromCountry(t *testing.T) {
	assert.Equal(t, "DE", codeFromCountry("DE"))
	assert.Equal(t, "NL", codeFromCountry(" nl "))
	assert.Equal(t, "", codeFromCountry("FRB1"))
	assert.Equal(t, "", codeFromCountry("D"))
	assert.Equal(t, "", codeFromCountry("1F"))
	assert.Equal(t, "", codeFromCountry(""))
}

func TestCodeFromRegion(t *testing.T) {
	assert.Equal(t, "DE", codeFromRegion("DE"))
	assert.Equal(t, "FR", codeFromRegion(" FRB1 "))
	assert.Equal(t, "IT", codeFromRegion("itc4"))
	assert.Equal(t, "", codeFromRegion("1F"))
	assert.Equal(t, "", codeFromRegion("D"))
	assert.Equal(t, "", codeFromRegion(""))
}

func TestCodeFromRegionNoND(t *testing.T) {
	assert.Equal(t, "", codeFromRegionNoND("ND1"))
	assert.Equal(t, "", codeFromRegionNoND(" ND4 "))
	assert.Equal(t, "DE", codeFromRegionNoND("DE"))
}
