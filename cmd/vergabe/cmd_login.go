package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vergabeflow/internal/types"
)

var (
	loginEmail    string
	loginPassword string
)

// loginCmd authenticates against the identity provider
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	Long: `Authenticates against the identity provider and stores the session
in the workspace (.vergabe/auth.json). While logged in, generation requests
use the session token instead of an API key.

The password is read from --password, VERGABE_PASSWORD or stdin.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.MarkFlagRequired("email")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	password := loginPassword
	if password == "" {
		password = os.Getenv("VERGABE_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Passwort: ")
		p, err := readLine(bufio.NewReader(cmd.InOrStdin()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = p
	}

	a, err := newApp(cfg, types.DiscardNotices)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.gate.Login(ctx, loginEmail, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Angemeldet als %s\n", user.DisplayName())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, types.DiscardNotices)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.gate.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Erfolgreich abgemeldet")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg, types.DiscardNotices)
	if err != nil {
		return err
	}
	defer a.Close()
	a.restore(ctx)

	out := cmd.OutOrStdout()
	sess, ok := a.gate.Session()
	switch {
	case ok:
		fmt.Fprintf(out, "Angemeldet als %s (%s)\n", sess.User.DisplayName(), sess.User.Email)
		if exp, has := sess.Expiry(); has {
			fmt.Fprintf(out, "Sitzung gültig bis %s\n", exp.Local().Format("02.01.2006 15:04"))
		}
	case a.gate.HasAPIKey():
		fmt.Fprintln(out, "Nicht angemeldet, API-Schlüssel konfiguriert")
	default:
		fmt.Fprintln(out, "Nicht angemeldet")
	}
	return nil
}

// readLine reads one line without the trailing newline. A final line
// without newline is returned; io.EOF only when nothing was read.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
