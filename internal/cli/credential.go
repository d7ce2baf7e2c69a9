package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/credential"
)

// NewCredentialCommand creates the credential command. It works on hash
// strings only and never opens the store.
func NewCredentialCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Hash and verify operator credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "hash <password>",
		Short:         "Hash a password in the current format",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := credential.Current.Hash(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to hash password", err)
			}
			return rootOpts.formatter(cmd).Success(map[string]string{
				"format": credential.Current.Name(),
				"hash":   hash,
			}, func(w io.Writer) {
				fmt.Fprintln(w, hash)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <password> <hash>",
		Short: "Check a password against a stored hash",
		Long: `Check a password against a stored hash.

Both bcrypt and legacy SHA-256 hashes are accepted. The result says
whether the hash should be replaced with a fresh one.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			password, stored := args[0], args[1]
			v := credential.For(stored)

			err := v.Verify(password, stored)
			switch {
			case errors.Is(err, credential.ErrMismatch):
				if ferr := out.Error("MISMATCH", "password does not match", nil); ferr != nil {
					return ferr
				}
				return &ExitError{Code: ExitFailure, Message: "password does not match", Reported: true}
			case err != nil:
				return WrapExitError(ExitCommandError, "malformed hash", err)
			}

			rehash := credential.NeedsRehash(stored)
			return out.Success(map[string]any{
				"format": v.Name(),
				"match":  true,
				"rehash": rehash,
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Password matches (%s)\n", v.Name())
				if rehash {
					fmt.Fprintln(w, "Hash should be replaced")
				}
			})
		},
	})

	return cmd
}
