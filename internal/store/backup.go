package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/model"
)

// ErrBackupUnsupported is returned when backing up an in-memory store.
var ErrBackupUnsupported = errors.New("store: backup not supported for in-memory store")

// Backup writes a consistent copy of the store file to dst. No transaction
// runs while the copy is taken. The copy is written to a temporary file and
// renamed into place, so dst is either the old file or the complete new one.
func (g *Guard) Backup(ctx context.Context, dst string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if g.path == MemoryPath {
		return ErrBackupUnsupported
	}
	if err := g.ensureLocked(ctx); err != nil {
		return err
	}

	// Fold the WAL into the main file so one file is the whole store.
	if err := g.checkpointLocked(ctx); err != nil {
		return fmt.Errorf("checkpoint before backup: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	start := time.Now()
	tmp := dst + ".tmp"
	if err := copyFile(g.path, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("copy store: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize backup: %w", err)
	}

	g.log.Info("backup written",
		zap.String("src", g.path),
		zap.String("dst", dst),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// checkpointLocked runs a TRUNCATE checkpoint. SQLite reports a checkpoint
// blocked by another connection's reader in the result row rather than as
// an error; that case is STORE_BUSY.
func (g *Guard) checkpointLocked(ctx context.Context) error {
	var busy, frames, done int
	err := g.db.QueryRowxContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &frames, &done)
	if err != nil {
		return classify(err)
	}
	if busy != 0 || done < frames {
		return model.NewStoreBusy(fmt.Errorf("wal checkpoint incomplete: %d of %d frames", done, frames))
	}
	return nil
}

// BackupName returns the file name used for a backup taken at t.
func BackupName(t time.Time) string {
	return fmt.Sprintf("stockpile-%s.db", t.UTC().Format("20060102T150405Z"))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
