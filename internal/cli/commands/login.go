package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stockpile-dev/stockpile/internal/client"
)

var errNonInteractive = errors.New("password is required in non-interactive mode (use --password flag or STOCKPILE_PASSWORD env var)")

// NewLoginCmd creates the login command
func NewLoginCmd(opts ...Option) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the inventory API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, email, password, opts)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set STOCKPILE_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set STOCKPILE_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(cmd *cobra.Command, email, password string, opts []Option) error {
	// Check for environment variables (useful for CI/CD)
	if email == "" {
		email = os.Getenv("STOCKPILE_EMAIL")
	}
	if password == "" {
		password = os.Getenv("STOCKPILE_PASSWORD")
	}

	if email == "" {
		return fmt.Errorf("email is required (use --email flag or STOCKPILE_EMAIL env var)")
	}

	r, err := newEnv(opts)
	if err != nil {
		return err
	}
	defer r.close()

	if password == "" {
		password, err = r.readPassword()
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(r.out, "Logging in to %s...\n", r.api.BaseURL())

	if err := r.provider.Login(cmd.Context(), email, password); err != nil {
		return fmt.Errorf("login failed: %s", client.Message(err))
	}

	user := r.provider.Session().User
	fmt.Fprintln(r.out, "✓ Login successful!")
	fmt.Fprintf(r.out, "  User: %s (%s)\n", user.DisplayName(), user.Email)
	if user.IsStaff {
		fmt.Fprintln(r.out, "  Role: Staff")
	}

	return nil
}

// promptPassword reads a password from the terminal without echo
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNonInteractive
	}

	fmt.Fprint(os.Stderr, "Password: ")
	bytePassword, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}
