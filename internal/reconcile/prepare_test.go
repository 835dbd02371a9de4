package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/loantape/internal/frame"
)

func TestPrepareECBRenamesAndTags(t *testing.T) {
	s := newTestSession(t)
	f := frame.New("AR3", "AR1", "other")
	f.AppendRow([]string{"LOAN1", "2021-04-30", "x"})

	out := s.prepareECB(f, testECBPool)

	assert.True(t, out.Has(colLoanID))
	assert.True(t, out.Has(colDate))
	assert.False(t, out.Has("AR3"))
	assert.Equal(t, sourceECB, out.At(0, colSource))
	assert.Equal(t, "2021-04", out.At(0, colDateYM))
}

func TestPrepareECBFallsBackToLegacyDateColumn(t *testing.T) {
	s := newTestSession(t)
	// A template that knows nothing about AR1 leaves the legacy date
	// column unrenamed; the dedup key still derives from it.
	s.template.ECBToESMA = map[string]string{"AR3": "RREL3"}

	f := frame.New("AR3", "AR1")
	f.AppendRow([]string{"LOAN1", "2021-04-30"})

	out := s.prepareECB(f, testECBPool)
	assert.Equal(t, "2021-04", out.At(0, colDateYM))
}

func TestPrepareNoDateColumnGivesNullKey(t *testing.T) {
	s := newTestSession(t)
	f := frame.New("RREL3")
	f.AppendRow([]string{"LOAN1"})

	out := s.prepareESMA(f, testESMAPool)
	assert.Equal(t, sourceESMA, out.At(0, colSource))
	assert.Equal(t, "", out.At(0, colDateYM))
}

func TestObservationKeys(t *testing.T) {
	f := frame.New(colLoanID, colDateYM)
	f.AppendRow([]string{"LOAN1", "2021-04"})
	f.AppendRow([]string{"", "2021-04"}) // null loan id never keys
	f.AppendRow([]string{"LOAN2", "2021-05"})

	keys := observationKeys(f)
	require.NotNil(t, keys)
	assert.Len(t, keys, 2)
	assert.True(t, keys[obsKey("LOAN1", "2021-04")])
	assert.False(t, keys[obsKey("", "2021-04")])
}

func TestObservationKeysMissingLoanColumn(t *testing.T) {
	f := frame.New("other", colDateYM)
	f.AppendRow([]string{"x", "2021-04"})
	assert.Nil(t, observationKeys(f))
}

func TestDropCoveredECBRows(t *testing.T) {
	f := frame.New(colSource, colLoanID, colDateYM)
	f.AppendRow([]string{sourceECB, "LOAN1", "2021-04"})  // covered, dropped
	f.AppendRow([]string{sourceECB, "LOAN2", "2021-04"})  // not covered
	f.AppendRow([]string{sourceESMA, "LOAN1", "2021-04"}) // ESMA never dropped

	out, dropped := dropCoveredECBRows(f, map[string]bool{obsKey("LOAN1", "2021-04"): true})
	assert.Equal(t, 1, dropped)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "LOAN2", out.At(0, colLoanID))
	assert.Equal(t, sourceESMA, out.At(1, colSource))
}
