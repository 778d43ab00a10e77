package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ricp/internal/report"
)

const watchedBundle = `
run_id: run-watch-1
gate:
  verdict: PASS
  block_downstream: false
traces:
  - shape_id: THEME_CAPABILITY
    run_id: run-watch-1
    survived: true
    evidence:
      - stage: INTENT
        present: true
        attributes_found: [theme_tokens, toggle_control]
      - stage: PIXEL
        present: true
        attributes_found: [theme_tokens, toggle_control]
`

func TestBundleWatcherExecutesNewBundles(t *testing.T) {
	t.Parallel()

	r, err := NewInMemory()
	require.NoError(t, err)
	defer r.Close()

	dir := t.TempDir()
	reports := make(chan *report.RunReport, 1)
	w, err := NewBundleWatcher(dir, r, func(rep *report.RunReport) {
		select {
		case reports <- rep:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "run-watch-1.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedBundle), 0o644))

	select {
	case rep := <-reports:
		require.Equal(t, "run-watch-1", rep.RunID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the watcher to process the bundle")
	}
}

func TestBundleWatcherIgnoresNonBundleFiles(t *testing.T) {
	t.Parallel()

	require.True(t, isBundleFile("run.yaml"))
	require.True(t, isBundleFile("run.YML"))
	require.False(t, isBundleFile("run.json"))
	require.False(t, isBundleFile("notes.txt"))
}

func TestBundleWatcherStopIsIdempotent(t *testing.T) {
	t.Parallel()

	r, err := NewInMemory()
	require.NoError(t, err)
	defer r.Close()

	w, err := NewBundleWatcher(t.TempDir(), r, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
