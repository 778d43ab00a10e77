package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ricp/internal/shape"
)

func TestIndexStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := OpenIndexStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	entries := []*IndexEntry{{
		Hash:    "abcd1234abcd1234",
		Handoff: shape.HandoffWirePixel,
		Occurrences: []Occurrence{
			{RunID: "r1", Timestamp: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), CausedLoss: true},
			{RunID: "r2", Timestamp: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)},
		},
		LossOccurrences: 1,
		Verdict:         VerdictCausedLoss,
	}}
	require.NoError(t, store.SaveAll(entries))

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "abcd1234abcd1234", loaded[0].Hash)
	require.Equal(t, VerdictCausedLoss, loaded[0].Verdict)
	require.Len(t, loaded[0].Occurrences, 2)
	require.Equal(t, "r1", loaded[0].Occurrences[0].RunID)
	require.True(t, loaded[0].Occurrences[0].CausedLoss)
}

func TestIndexStoreRecoversFromCorruption(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fingerprints.db"), []byte("garbage"), 0o644))

	store, err := OpenIndexStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Empty(t, loaded, "fresh index after corruption must be empty, not guessed")
}

func TestFirewallPersistAndReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenIndexStore(dir)
	require.NoError(t, err)

	fw, err := NewFirewall(store)
	require.NoError(t, err)

	fp := Collect("run-9", shape.DefaultRegistry(), pixelHandoffTraces())[0]
	fw.Record(fp, false, true)
	require.NoError(t, fw.Persist())
	require.NoError(t, store.Close())

	store2, err := OpenIndexStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })

	fw2, err := NewFirewall(store2)
	require.NoError(t, err)

	block := fw2.CheckHash(fp)
	require.NotNil(t, block, "verdict must survive reload")
	require.Equal(t, VerdictCausedInvariantViolation, block.Verdict)
	require.Equal(t, "run-9", block.EvidenceRunID)
}
