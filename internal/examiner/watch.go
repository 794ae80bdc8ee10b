package examiner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BankWatcher hot-reloads a question bank when its backing file changes, so
// operators can edit questions without a restart.
type BankWatcher struct {
	watcher *fsnotify.Watcher
	bank    *Bank
	logger  *slog.Logger
}

// NewBankWatcher creates a watcher for the bank's file. The bank must have
// been loaded from a file; watching the embedded defaults makes no sense.
func NewBankWatcher(bank *Bank, logger *slog.Logger) (*BankWatcher, error) {
	if bank.path == "" {
		return nil, fmt.Errorf("examiner: bank has no file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("examiner: create file watcher: %w", err)
	}
	if err := watcher.Add(bank.path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("examiner: watch %q: %w", bank.path, err)
	}
	return &BankWatcher{watcher: watcher, bank: bank, logger: logger}, nil
}

// Run reloads the bank on file changes. Blocks until ctx is cancelled.
func (w *BankWatcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	// Debounce: editors fire several events per save.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := w.bank.Reload(); err != nil {
						w.logger.Error("question bank reload failed", "error", err)
					} else {
						w.logger.Info("question bank reloaded", "questions", w.bank.Size())
					}
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("question bank watcher error", "error", err)
		}
	}
}
