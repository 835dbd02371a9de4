package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExportName(t *testing.T) {
	parsed, ok := ParseExportName("1_RMB_UE_213800WQJJDCAN4BCO57N201901_2021-04-30_29907.csv")
	require.True(t, ok)
	assert.Equal(t, "RMB", parsed.AssetType)
	assert.Equal(t, "UE", parsed.Category)
	assert.Equal(t, "213800WQJJDCAN4BCO57N201901", parsed.Identifier)
	assert.Equal(t, "2021-04-30", parsed.Date)
	assert.Equal(t, "29907", parsed.Sequence)
}

func TestParseExportNameRejectsOtherNames(t *testing.T) {
	for _, name := range []string{
		"1_RMB_Other_ID_2021-04-30_1.csv",
		"2_RMB_UE_ID_2021-04-30_1.csv",
		"1_RMB_UE_ID_2021-4-30_1.csv",
		"1_RMB_UE_ID_2021-04-30_1.txt",
		"readme.md",
	} {
		_, ok := ParseExportName(name)
		assert.False(t, ok, name)
	}
}

func TestMergedName(t *testing.T) {
	got := MergedName("1_RMB_UE_ID123_2021-04-30_7.csv")
	assert.Equal(t, "1_RMB_UE_Collateral_ID123_2021-04-30_7.csv", got)
}

func TestMatchPairs(t *testing.T) {
	names := []string{
		"1_RMB_UE_IDA_2021-04-30_1.csv",
		"1_RMB_Collateral_IDA_2021-04-30_2.csv",
		"1_RMB_UE_IDB_2021-04-30_3.csv", // no collateral counterpart
		"1_AUT_Collateral_IDC_2021-04-30_4.csv",
		"junk.csv",
	}

	pairs := MatchPairs(names)
	require.Len(t, pairs, 1)
	assert.Equal(t, "1_RMB_UE_IDA_2021-04-30_1.csv", pairs[0].UE.Filename)
	assert.Equal(t, "1_RMB_Collateral_IDA_2021-04-30_2.csv", pairs[0].Collateral.Filename)
}

func TestMatchPairsRequiresSameDate(t *testing.T) {
	names := []string{
		"1_RMB_UE_IDA_2021-04-30_1.csv",
		"1_RMB_Collateral_IDA_2021-05-31_2.csv",
	}
	assert.Empty(t, MatchPairs(names))
}
