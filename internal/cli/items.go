package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/records"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Group      string
	Attributes string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <name> <quantity>",
		Short: "Add quantity to a record, creating it if needed",
		Long: `Add quantity to a record, creating it if needed.

--group and --attributes only apply when the record is created; an existing
record keeps its group and attributes.

Examples:
  stockpile add Widget 5 --group tools
  stockpile add Bolt 100 --attributes '{"size":"M6"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", "", "group for a new record")
	cmd.Flags().StringVar(&opts.Attributes, "attributes", "", "attributes for a new record as a JSON object")

	return cmd
}

func runAdd(opts *AddOptions, cmd *cobra.Command, name, quantity string) error {
	delta, err := parseQuantity(quantity)
	if err != nil {
		return err
	}
	attrs, err := parseAttributes(opts.Attributes)
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	return withEngine(cmd.Context(), opts.RootOptions, func(e *inventory.Engine) error {
		add, err := e.Records().AddQuantity(cmd.Context(), name, delta,
			records.WithGroup(opts.Group),
			records.WithAttributes(attrs),
		)
		if err != nil {
			return engineError("failed to add quantity", err)
		}
		return out.Success(add, func(w io.Writer) {
			verb := "Added"
			if add.Created {
				verb = "Created"
			}
			fmt.Fprintf(w, "%s %s: +%d, now %d\n", verb, add.Name, add.Delta, add.Quantity)
			if add.LowStock {
				fmt.Fprintf(w, "Warning: %s is low on stock\n", add.Name)
			}
		})
	})
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name> <quantity>",
		Short: "Remove quantity from a record",
		Long: `Remove quantity from a record.

The record is deleted when its quantity reaches zero. Removing more than
is held fails with INSUFFICIENT_QUANTITY and changes nothing.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(rootOpts, cmd, args[0], args[1])
		},
	}
	return cmd
}

func runRemove(opts *RootOptions, cmd *cobra.Command, name, quantity string) error {
	amount, err := parseQuantity(quantity)
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	return withEngine(cmd.Context(), opts, func(e *inventory.Engine) error {
		rm, err := e.Records().RemoveQuantity(cmd.Context(), name, amount)
		if err != nil {
			return engineError("failed to remove quantity", err)
		}

		switch rm.Failure {
		case model.CodeNotFound:
			return out.Failure(rm.Failure, fmt.Sprintf("record %q not found", name), nil)
		case model.CodeInsufficientQuantity:
			return out.Failure(rm.Failure,
				fmt.Sprintf("cannot remove %d from %q: only %d available", amount, name, rm.Available),
				map[string]int64{"available": rm.Available, "requested": amount})
		}

		return out.Success(rm, func(w io.Writer) {
			if rm.Deleted {
				fmt.Fprintf(w, "Removed %d %s, record deleted\n", rm.Amount, rm.Name)
				return
			}
			fmt.Fprintf(w, "Removed %d %s, %d remaining\n", rm.Amount, rm.Name, rm.Remaining)
			if rm.LowStock {
				fmt.Fprintf(w, "Warning: %s is low on stock\n", rm.Name)
			}
		})
	})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a record regardless of quantity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				deleted, err := e.Records().Delete(cmd.Context(), name)
				if err != nil {
					return engineError("failed to delete record", err)
				}
				if !deleted {
					return out.Failure(model.CodeNotFound, fmt.Sprintf("record %q not found", name), nil)
				}
				return out.Success(map[string]string{"deleted": name}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %s\n", name)
				})
			})
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <name>",
		Short:         "Show one record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				rec, found, err := e.Records().Get(cmd.Context(), name)
				if err != nil {
					return engineError("failed to get record", err)
				}
				if !found {
					return out.Failure(model.CodeNotFound, fmt.Sprintf("record %q not found", name), nil)
				}
				return out.Success(rec, func(w io.Writer) {
					printRecords(w, []model.Record{rec})
				})
			})
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Groups []string
	Limit  uint64
	Offset uint64
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records ordered by name",
		Long: `List records ordered by name.

Examples:
  stockpile list
  stockpile list --group tools --group parts
  stockpile list --limit 20 --offset 40`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Groups, "group", nil, "only records in these groups")
	cmd.Flags().Uint64Var(&opts.Limit, "limit", 0, "maximum records to show (0 = all)")
	cmd.Flags().Uint64Var(&opts.Offset, "offset", 0, "records to skip")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	listOpts := []records.ListOption{records.ByGroups(opts.Groups...)}
	if opts.Limit > 0 {
		listOpts = append(listOpts, records.WithLimit(opts.Limit))
	}
	if opts.Offset > 0 {
		listOpts = append(listOpts, records.WithOffset(opts.Offset))
	}

	out := opts.formatter(cmd)
	return withEngine(cmd.Context(), opts.RootOptions, func(e *inventory.Engine) error {
		recs, err := e.Records().List(cmd.Context(), listOpts...)
		if err != nil {
			return engineError("failed to list records", err)
		}
		total, err := e.Records().Count(cmd.Context(), listOpts...)
		if err != nil {
			return engineError("failed to count records", err)
		}
		out.VerboseLog("%d of %d records", len(recs), total)
		return out.Success(nonNil(recs), func(w io.Writer) {
			printRecords(w, recs)
		})
	})
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Find records whose name contains term",
		Long: `Find records whose name contains term.

The match is case-sensitive and treats % and _ literally.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				recs, err := e.Records().Search(cmd.Context(), args[0])
				if err != nil {
					return engineError("failed to search records", err)
				}
				return out.Success(nonNil(recs), func(w io.Writer) {
					printRecords(w, recs)
				})
			})
		},
	}
}

// AttrsOptions holds flags for the attrs command.
type AttrsOptions struct {
	*RootOptions
	Merge bool
}

// NewAttrsCommand creates the attrs command.
func NewAttrsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttrsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "attrs <name> <json>",
		Short: "Replace or merge a record's attributes",
		Long: `Replace or merge a record's attributes.

Without --merge the JSON object replaces every attribute. With --merge its
keys are added to the existing attributes, overwriting keys of the same name.

Example:
  stockpile attrs Widget '{"color":"red"}' --merge`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttrs(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&opts.Merge, "merge", false, "merge into existing attributes")

	return cmd
}

func runAttrs(opts *AttrsOptions, cmd *cobra.Command, name, raw string) error {
	attrs, err := parseAttributes(raw)
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	return withEngine(cmd.Context(), opts.RootOptions, func(e *inventory.Engine) error {
		updated, err := e.Records().UpdateAttributes(cmd.Context(), name, attrs, opts.Merge)
		if err != nil {
			return engineError("failed to update attributes", err)
		}
		if !updated {
			return out.Failure(model.CodeNotFound, fmt.Sprintf("record %q not found", name), nil)
		}
		rec, _, err := e.Records().Get(cmd.Context(), name)
		if err != nil {
			return engineError("failed to get record", err)
		}
		return out.Success(rec, func(w io.Writer) {
			printRecords(w, []model.Record{rec})
		})
	})
}

// NewSetGroupCommand creates the set-group command.
func NewSetGroupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-group <name> [group]",
		Short: "Move a record into a group, or out of any group",
		Args:  cobra.RangeArgs(1, 2),
		Long: `Move a record into a group, or out of any group when group is omitted.

The group does not need to exist in the group list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, group := args[0], ""
			if len(args) == 2 {
				group = args[1]
			}
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				ok, err := e.Records().SetGroup(cmd.Context(), name, group)
				if err != nil {
					return engineError("failed to set group", err)
				}
				if !ok {
					return out.Failure(model.CodeNotFound, fmt.Sprintf("record %q not found", name), nil)
				}
				return out.Success(map[string]any{"name": name, "group": model.StringPtr(group)}, func(w io.Writer) {
					if group == "" {
						fmt.Fprintf(w, "%s has no group\n", name)
						return
					}
					fmt.Fprintf(w, "%s moved to %s\n", name, group)
				})
			})
		},
	}
}

// parseQuantity parses a positive whole quantity argument.
func parseQuantity(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid quantity %q", s), err)
	}
	if n <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("quantity must be positive, got %d", n))
	}
	return n, nil
}

func parseAttributes(s string) (model.Object, error) {
	attrs, err := model.ParseObject([]byte(s))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid attributes JSON", err)
	}
	return attrs, nil
}

// printRecords writes records as an aligned table.
func printRecords(w io.Writer, recs []model.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No records")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tQUANTITY\tGROUP\tATTRIBUTES")
	for _, r := range recs {
		attrs, err := model.MarshalValue(r.Attributes)
		if err != nil {
			attrs = []byte("?")
		}
		group := model.Deref(r.Group)
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Name, r.Quantity, group, attrs)
	}
	_ = tw.Flush()
}

// nonNil keeps empty JSON lists as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
