package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/model"
)

// NewGroupCommand creates the group command and its subcommands.
func NewGroupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage record groups",
	}

	cmd.AddCommand(newGroupCreateCommand(rootOpts))
	cmd.AddCommand(newGroupRenameCommand(rootOpts))
	cmd.AddCommand(newGroupDeleteCommand(rootOpts))
	cmd.AddCommand(newGroupListCommand(rootOpts))

	return cmd
}

func newGroupCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:           "create <name>",
		Short:         "Register a group",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				group, created, err := e.Records().CreateGroup(cmd.Context(), args[0], description)
				if err != nil {
					return engineError("failed to create group", err)
				}
				return out.Success(map[string]any{"group": group, "created": created}, func(w io.Writer) {
					if created {
						fmt.Fprintf(w, "Created group %s\n", group.Name)
						return
					}
					fmt.Fprintf(w, "Group %s already exists\n", group.Name)
				})
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "group description")

	return cmd
}

func newGroupRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Move every record in a group to a new group name",
		Long: `Move every record in a group to a new group name.

The group row is renamed too. Renaming writes no per-record history.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				n, err := e.Records().RenameGroup(cmd.Context(), args[0], args[1])
				if err != nil {
					return engineError("failed to rename group", err)
				}
				return out.Success(map[string]any{"from": args[0], "to": args[1], "records": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Renamed %s to %s (%d records)\n", args[0], args[1], n)
				})
			})
		},
	}
}

func newGroupDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a group, keeping its records ungrouped",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				cleared, existed, err := e.Records().DeleteGroup(cmd.Context(), name)
				if err != nil {
					return engineError("failed to delete group", err)
				}
				if !existed && cleared == 0 {
					return out.Failure(model.CodeNotFound, fmt.Sprintf("group %q not found", name), nil)
				}
				return out.Success(map[string]any{"deleted": name, "cleared": cleared}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted group %s (%d records cleared)\n", name, cleared)
				})
			})
		},
	}
}

func newGroupListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered groups",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				groups, err := e.Records().ListGroups(cmd.Context())
				if err != nil {
					return engineError("failed to list groups", err)
				}
				return out.Success(nonNil(groups), func(w io.Writer) {
					if len(groups) == 0 {
						fmt.Fprintln(w, "No groups")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NAME\tCREATED\tDESCRIPTION")
					for _, g := range groups {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", g.Name, g.CreatedAt.Format(time.RFC3339), g.Description)
					}
					_ = tw.Flush()
				})
			})
		},
	}
}
