package configwatcher

import (
	"context"
	"exam_review_backend/internal/config"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchConfig_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("testing:\n  attempts: 8\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 1)
	load := func(string) (*config.Config, error) {
		return &config.Config{Testing: config.TestingConfig{Attempts: 4}}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, load, func(cfg *config.Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// 等待 watcher 注册完成后再写文件
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("testing:\n  attempts: 4\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 4, cfg.Testing.Attempts)
	case <-time.After(10 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
