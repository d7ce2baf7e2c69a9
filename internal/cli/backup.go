package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/inventory"
)

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [dst]",
		Short: "Copy the store to a backup file",
		Long: `Copy the store to a backup file.

Without dst the copy is written under backup.dir with a timestamped name.
In-memory stores cannot be backed up.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := ""
			if len(args) == 1 {
				dst = args[0]
			}
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				path, err := e.Backup(cmd.Context(), dst)
				if err != nil {
					return engineError("failed to back up store", err)
				}
				return out.Success(map[string]string{"path": path}, func(w io.Writer) {
					fmt.Fprintf(w, "Backup written to %s\n", path)
				})
			})
		},
	}

	cmd.AddCommand(newBackupScheduleCommand(rootOpts))

	return cmd
}

func newBackupScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Take backups on a cron schedule until interrupted",
		Long: `Take backups on a cron schedule until interrupted.

--cron takes a standard 5-field spec or a descriptor such as @daily and
defaults to backup.schedule.

Example:
  stockpile backup schedule --cron "0 3 * * *"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBackupSchedule(ctx, rootOpts, cmd, spec)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "cron schedule (default backup.schedule)")

	return cmd
}

func runBackupSchedule(ctx context.Context, opts *RootOptions, cmd *cobra.Command, spec string) error {
	out := opts.formatter(cmd)
	return withEngine(ctx, opts, func(e *inventory.Engine) error {
		if spec == "" {
			spec = e.Config().Backup.Schedule
		}
		if spec == "" {
			return NewExitError(ExitCommandError, "no schedule: pass --cron or set backup.schedule")
		}

		written := make(chan string, 1)
		sched, err := inventory.NewBackupScheduler(e, spec, written)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid schedule", err)
		}
		if err := sched.Start(); err != nil {
			return engineError("failed to start scheduler", err)
		}
		defer sched.Stop()

		out.VerboseLog("next backup at %s", sched.Next().Format(time.RFC3339))
		for {
			select {
			case <-ctx.Done():
				return nil
			case path := <-written:
				if err := out.Success(map[string]string{"path": path}, func(w io.Writer) {
					fmt.Fprintf(w, "Backup written to %s\n", path)
				}); err != nil {
					return err
				}
			}
		}
	})
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the store answers queries",
		Long: `Check that the store answers queries.

A failed check forces one reconnect and checks again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				if !e.Health(cmd.Context()) {
					if err := out.Error("STORE_UNAVAILABLE", "store is unhealthy", nil); err != nil {
						return err
					}
					return &ExitError{Code: ExitCommandError, Message: "store is unhealthy", Reported: true}
				}
				return out.Success(map[string]bool{"healthy": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Store is healthy")
				})
			})
		},
	}
}
