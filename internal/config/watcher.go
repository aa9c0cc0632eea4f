package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"quorum/internal/logger"
)

// WatchRisk re-reads the risk section whenever the config file changes
// on disk and hands the fresh values to onChange. Editors that replace
// the file (rename+create) are handled by watching the directory.
// Blocks until ctx is cancelled.
func WatchRisk(ctx context.Context, path string, onChange func(RiskConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)
	logger.Infof("config: watching %s for risk profile changes", target)

	// Debounce: editors fire several events per save.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(300 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config: watch error: %v", err)
		case <-pending:
			pending = nil
			cfg, err := Load(target)
			if err != nil {
				logger.Warnf("config: reload skipped, %v", err)
				continue
			}
			logger.Infof("config: risk profile reloaded (stop=%.2f take=%.2f cap=%.2f)",
				cfg.Risk.StopLossPct, cfg.Risk.TakeProfitPct, cfg.Risk.DailyLossCap)
			onChange(cfg.Risk)
		}
	}
}
