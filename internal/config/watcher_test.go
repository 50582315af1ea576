package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeTempConfig(t, "[policy]\npercentage_low = 15.0\n")

	var mu sync.Mutex
	var got *Config
	w, err := NewWatcher(path, 20*time.Millisecond, func(cfg *Config) {
		mu.Lock()
		got = cfg
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("[policy]\npercentage_low = 25.0\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Policy.PercentageLow == 25
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherReportsLoadErrors(t *testing.T) {
	path := writeTempConfig(t, "")

	errs := make(chan error, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, nil, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported for invalid TOML")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := writeTempConfig(t, "")
	w, err := NewWatcher(path, 0, nil, nil)
	require.NoError(t, err)

	w.Stop()
	w.Start()
	w.Stop()
	w.Stop()
}
