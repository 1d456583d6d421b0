package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tourism-portal/internal/authcontext"
	xerrors "tourism-portal/internal/pkg/errors"

	"github.com/spf13/cobra"
)

func newLoginCmd(p *portal) *cobra.Command {
	var (
		email    string
		password string
		remember bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the portal",
		Long: `Log in with your email and password.

The password is read from stdin when --password is not given.

Examples:
  portal login --email you@example.com --remember
  echo "$PASS" | portal login --email you@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				line, err := readLine(bufio.NewReader(cmd.InOrStdin()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = line
			}

			if err := p.session.Login(cmd.Context(), email, password, remember); err != nil {
				return fmt.Errorf("login failed: %s", p.loginFailure(err))
			}

			printUser(cmd.OutOrStdout(), p.session.State())
			if !remember {
				fmt.Fprintln(cmd.OutOrStdout(), "Not remembered: this login ends with the command. Use --remember or 'portal shell'.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the login across commands")
	return cmd
}

func newLogoutCmd(p *portal) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			// the stored token may be valid even when the status check failed
			p.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newStatusCmd(p *portal) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show who is logged in",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := p.session.State()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), statusView(st))
			}
			printUser(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

type statusJSON struct {
	Authenticated bool        `json:"authenticated"`
	Error         string      `json:"error,omitempty"`
	User          interface{} `json:"user,omitempty"`
}

func statusView(st authcontext.State) statusJSON {
	out := statusJSON{Authenticated: st.IsAuthenticated, Error: st.Error}
	if st.CurrentUser != nil {
		out.User = st.CurrentUser
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUser(w io.Writer, st authcontext.State) {
	u := st.CurrentUser
	if !st.IsAuthenticated || u == nil {
		fmt.Fprintln(w, "Not logged in.")
		return
	}

	name := u.Profile.FullName
	if name == "" {
		name = u.Profile.Email
	}
	fmt.Fprintf(w, "Logged in as %s <%s>\n", name, u.Profile.Email)
	fmt.Fprintf(w, "  Role: %s\n", u.Role)
	if len(u.Permissions) > 0 {
		fmt.Fprintf(w, "  Permissions: %s\n", strings.Join(u.Permissions, ", "))
	}
	for _, t := range u.Teams {
		fmt.Fprintf(w, "  Team %s (#%d): %s\n", t.TeamName, t.TeamID, t.Role)
	}
}

// loginFailure prefers the message the session recorded. A rejected
// precondition records nothing and leaves any older message in place.
func (p *portal) loginFailure(err error) string {
	if xerrors.Is(err, xerrors.ErrInvalidInput) {
		return err.Error()
	}
	if msg := p.session.State().Error; msg != "" {
		return msg
	}
	return err.Error()
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
