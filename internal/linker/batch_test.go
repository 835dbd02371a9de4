package linker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ueName   = "1_RMB_UE_IDA_2021-04-30_1.csv"
	collName = "1_RMB_Collateral_IDA_2021-04-30_2.csv"
)

func writeBatchInputs(t *testing.T, dir string) {
	t.Helper()
	ue := "RREL1,RREL2,Balance\nL1,K1,100\nL2,K2,200\n"
	coll := "RREC1,RREC2,Valuation\nC1,K1,500000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ueName), []byte(ue), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, collName), []byte(coll), 0o644))
}

func TestBatchRun(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeBatchInputs(t, inDir)

	b := &Batch{InputDir: inDir, OutputDir: outDir, Workers: 2}
	report, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pairs)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, int64(2), report.TotalUERows)
	assert.Equal(t, int64(1), report.TotalMatched)
	assert.Equal(t, 1, report.SuccessByType["RMB"])
	assert.Equal(t, 1, report.KeysUsed["RREL2=RREC2"])

	outPath := filepath.Join(outDir, MergedName(ueName))
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "500000")
}

func TestBatchRunSkipsExistingOutputs(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeBatchInputs(t, inDir)
	existing := filepath.Join(outDir, MergedName(ueName))
	require.NoError(t, os.WriteFile(existing, []byte("already done\n"), 0o644))

	b := &Batch{InputDir: inDir, OutputDir: outDir, Workers: 1}
	report, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Successful)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "already done\n", string(data))
}

func TestBatchRunContainsPairFailure(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	// Collateral side has no detectable key column.
	ue := "RREL1,RREL2\nL1,K1\n"
	coll := "Whatever\nX\n"
	require.NoError(t, os.WriteFile(filepath.Join(inDir, ueName), []byte(ue), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, collName), []byte(coll), 0o644))

	b := &Batch{InputDir: inDir, OutputDir: outDir, Workers: 1}
	report, err := b.Run(context.Background())
	require.NoError(t, err, "a pair failure must not abort the batch")

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.FailedPairs, 1)
	assert.Equal(t, ueName, report.FailedPairs[0].UE)
	assert.Contains(t, report.FailedPairs[0].Error, "cannot detect join keys")
}
