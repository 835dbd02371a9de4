package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runModes runs the same fixture through every processing mode and
// returns the output row keys per mode. All modes must agree: chunked
// processing is a memory strategy, never a semantic one.
func runModes(t *testing.T, overlap bool) map[string][]string {
	t.Helper()
	modes := map[string]func(s *Session){
		"in_memory": func(s *Session) {},
		"stream_one_side": func(s *Session) {
			s.cfg.LargePoolBytes = 0
		},
		"stream_both": func(s *Session) {
			s.cfg.LargePoolBytes = 0
			s.cfg.MemorySafeBytes = 0
		},
	}

	results := make(map[string][]string, len(modes))
	for name, tweak := range modes {
		s := newTestSession(t)
		seedMatchedPool(t, s)
		if overlap {
			s.overlap[testECBPool] = true
		}
		tweak(s)

		report, err := s.RunAll(context.Background())
		require.NoError(t, err, name)
		require.Equal(t, 1, report.Completed, name)

		results[name] = rowKeys(readOutput(t, s, BucketMatched, testECBPool))
	}
	return results
}

func TestChunkedModesMatchInMemoryWithDedup(t *testing.T) {
	results := runModes(t, true)
	want := results["in_memory"]
	require.Len(t, want, 4)
	for name, got := range results {
		assert.Equal(t, want, got, name)
	}
}

func TestChunkedModesMatchInMemoryWithoutDedup(t *testing.T) {
	results := runModes(t, false)
	want := results["in_memory"]
	require.Len(t, want, 5)
	for name, got := range results {
		assert.Equal(t, want, got, name)
	}
}

func TestStreamESMAHoldECBPostHocDedup(t *testing.T) {
	// Make the ESMA side strictly larger than the ECB side so the driver
	// holds ECB in memory and must remove covered ECB rows after the fact.
	s := newTestSession(t)
	s.addECBFile(t, testECBPool, testECBPool+"_2021-04-30.csv.gz",
		"AR3,AR1\nLOAN1,2021-04-30\nLOAN2,2021-04-30\n")
	esma := "RREL3,RREL6,esma_extra_padding_column\n"
	for i := 0; i < 50; i++ {
		esma += "LOAN9,2021-04-30,padding-padding-padding\n"
	}
	esma += "LOAN2,2021-04-15,covered\n"
	s.addESMAFile(t, testESMAPool, "1_RMB_UE_Collateral_"+testESMAPool+"_2021-04-30_1.csv", esma)
	s.matched[testECBPool] = testESMAPool
	s.overlap[testECBPool] = true
	s.cfg.LargePoolBytes = 0

	require.Greater(t, s.ESMASize(testESMAPool), s.ECBSize(testECBPool))

	report, err := s.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Completed)

	out := readOutput(t, s, BucketMatched, testECBPool)
	// 2 ECB rows minus the covered LOAN2, plus 51 ESMA rows.
	assert.Equal(t, 52, out.Len())
	for i := range out.Rows {
		if out.At(i, colSource) == sourceECB {
			assert.Equal(t, "LOAN1", out.At(i, colLoanID))
		}
	}
}

func TestChunkedSingleSourcePool(t *testing.T) {
	s := newTestSession(t)
	s.addECBFile(t, "ONLYECB", "ONLYECB_a.csv.gz",
		"AR3,AR1,left\nLOAN1,2021-04-30,x\nLOAN2,2021-04-30,y\nLOAN3,2021-05-31,z\n")
	s.addECBFile(t, "ONLYECB", "ONLYECB_b.csv.gz",
		"AR3,AR1,right\nLOAN4,2021-06-30,w\n")
	s.ecbOnly = []string{"ONLYECB"}
	s.cfg.LargePoolBytes = 0

	report, err := s.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Completed)

	out := readOutput(t, s, BucketECBOnly, "ONLYECB")
	require.Equal(t, 4, out.Len())
	// The union schema covers columns of both files.
	assert.True(t, out.Has("left"))
	assert.True(t, out.Has("right"))
	assert.Equal(t, "w", out.At(3, "right"))
	assert.Equal(t, "", out.At(3, "left"))
	// Only the present side's pool-id column appears.
	assert.True(t, out.Has(colECBPool))
	assert.False(t, out.Has(colESMAPool))
}

func TestSingleSourceSchemaBranchAgnostic(t *testing.T) {
	schemas := make(map[string][]string)
	for name, large := range map[string]int64{"in_memory": 1 << 30, "chunked": 0} {
		s := newTestSession(t)
		s.addECBFile(t, "ONLYECB", "ONLYECB_a.csv.gz",
			"AR3,AR1\nLOAN1,2021-04-30\nLOAN2,2021-05-31\n")
		s.ecbOnly = []string{"ONLYECB"}
		s.cfg.LargePoolBytes = large

		report, err := s.RunAll(context.Background())
		require.NoError(t, err, name)
		require.Equal(t, 1, report.Completed, name)
		schemas[name] = readOutput(t, s, BucketECBOnly, "ONLYECB").Columns
	}
	assert.Equal(t, schemas["in_memory"], schemas["chunked"])
	assert.NotContains(t, schemas["chunked"], colESMAPool)
}

func TestFinishSchema(t *testing.T) {
	cols := finishSchema(map[string]bool{"b": true, colDateYM: true, "a": true}, colECBPool, colESMAPool)
	assert.Equal(t, []string{"a", "b", colECBPool, colESMAPool}, cols)

	single := finishSchema(map[string]bool{"a": true}, colESMAPool)
	assert.Equal(t, []string{"a", colESMAPool}, single)

	assert.Nil(t, finishSchema(map[string]bool{}, colECBPool))
}
