package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(opts ...Option) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newEnv(opts)
			if err != nil {
				return err
			}
			defer r.close()

			// resolve first so the server can drop its refresh state
			r.provider.Bootstrap(cmd.Context())

			if err := r.provider.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(r.out, "Warning: %v\n", err)
			}
			fmt.Fprintln(r.out, "✓ Logged out")
			return nil
		},
	}
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(opts ...Option) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newEnv(opts)
			if err != nil {
				return err
			}
			defer r.close()

			if _, err := r.session(cmd.Context()); err != nil {
				return err
			}

			snap := r.provider.Session()
			if snap.User == nil {
				return fmt.Errorf("failed to load profile")
			}

			fmt.Fprintf(r.out, "%s (%s)\n", snap.User.DisplayName(), snap.User.Email)
			fmt.Fprintf(r.out, "  API: %s\n", r.api.BaseURL())
			if exp, ok := snap.ExpiresAt(); ok {
				fmt.Fprintf(r.out, "  Access token expires: %s (in %s)\n",
					exp.Local().Format(time.RFC1123), time.Until(exp).Round(time.Second))
			}
			return nil
		},
	}
}
