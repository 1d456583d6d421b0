package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

const shellHelp = `Commands:
  login <email> [--remember]   log in, the password is asked on the next line
  logout                       log out
  status                       show the current user
  refresh                      ask the server who is logged in
  help                         show this help
  exit                         leave the shell`

func newShellCmd(p *portal) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session that keeps a login in memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.runShell(cmd, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
		},
	}
}

func (p *portal) runShell(cmd *cobra.Command, in *bufio.Reader, out io.Writer) error {
	ctx := cmd.Context()
	fmt.Fprintln(out, "Tourism portal shell. Type 'help' for commands.")

	for {
		fmt.Fprint(out, "portal> ")
		line, err := readLine(in)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(out, shellHelp)
		case "status":
			printUser(out, p.session.State())
		case "refresh":
			if p.session.CheckAuthStatus(ctx) {
				printUser(out, p.session.State())
			} else {
				fmt.Fprintln(out, "Not logged in.")
			}
		case "logout":
			p.session.Logout(ctx)
			fmt.Fprintln(out, "Logged out.")
		case "login":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: login <email> [--remember]")
				continue
			}
			remember := len(fields) > 2 && fields[2] == "--remember"

			fmt.Fprint(out, "Password: ")
			password, err := readLine(in)
			fmt.Fprintln(out)
			if err != nil {
				return err
			}

			if err := p.session.Login(ctx, fields[1], password, remember); err != nil {
				fmt.Fprintf(out, "Login failed: %s\n", p.loginFailure(err))
				continue
			}
			printUser(out, p.session.State())
		default:
			fmt.Fprintf(out, "unknown command %q, try 'help'\n", fields[0])
		}
	}
}
