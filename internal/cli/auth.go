package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

var (
	authEmail    string
	authPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Long: `Sign in with email and password. The token is kept in the state file
(or the OS keyring with LEADWATCH_TOKEN_STORE=keyring) until logout or until
the backend rejects it.

Examples:
  leadwatch login --email me@example.com
  LEADWATCH_PASSWORD=... leadwatch login --email me@example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd.Context(), "login")
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd.Context(), "register")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sess.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "account password (prompted when omitted)")
	}
}

func authenticate(ctx context.Context, action string) error {
	in := bufio.NewReader(os.Stdin)

	email := strings.TrimSpace(authEmail)
	if email == "" {
		var err error
		if email, err = prompt(in, "Email: "); err != nil {
			return err
		}
	}
	password := authPassword
	if password == "" {
		password = os.Getenv("LEADWATCH_PASSWORD")
	}
	if password == "" {
		var err error
		if password, err = promptPassword(in, "Password: "); err != nil {
			return err
		}
	}
	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}

	var (
		auth *models.AuthResponse
		err  error
	)
	if action == "register" {
		auth, err = api.Register(ctx, email, password)
	} else {
		auth, err = api.Login(ctx, email, password)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if err := sess.Login(*auth); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	logger.Info("signed in", "user", auth.User.Email)
	fmt.Printf("Signed in as %s.\n", auth.User.Email)
	fmt.Println("Select a workspace with 'leadwatch workspaces use <id>'.")
	return nil
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(in *bufio.Reader, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
