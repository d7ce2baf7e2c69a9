package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// backupTimeout bounds one scheduled backup.
const backupTimeout = 2 * time.Minute

// BackupScheduler takes backups on a cron schedule.
type BackupScheduler struct {
	cron   *cron.Cron
	engine *Engine
	spec   string
	logger *zap.Logger

	// written receives every backup path, for callers that report progress.
	written chan<- string
}

// NewBackupScheduler validates spec (standard 5-field cron or a
// descriptor such as @daily) and prepares a scheduler. written may be nil.
func NewBackupScheduler(engine *Engine, spec string, written chan<- string) (*BackupScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", spec, err)
	}
	return &BackupScheduler{
		cron:    cron.New(),
		engine:  engine,
		spec:    spec,
		logger:  engine.log.Named("backup"),
		written: written,
	}, nil
}

// Start begins running scheduled backups in the background.
func (s *BackupScheduler) Start() error {
	s.logger.Info("starting backup scheduler", zap.String("schedule", s.spec))
	if _, err := s.cron.AddFunc(s.spec, s.runBackup); err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for a running backup to finish.
func (s *BackupScheduler) Stop() {
	s.logger.Info("stopping backup scheduler")
	<-s.cron.Stop().Done()
}

// Next returns when the next backup will run, or the zero time before Start.
func (s *BackupScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *BackupScheduler) runBackup() {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	path, err := s.engine.Backup(ctx, "")
	if err != nil {
		s.logger.Error("scheduled backup failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled backup written", zap.String("path", path))
	if s.written != nil {
		select {
		case s.written <- path:
		default:
		}
	}
}
