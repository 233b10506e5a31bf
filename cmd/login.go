package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/wikictl/internal/wikiops"
)

var passwordStdin bool

var loginCmd = &cobra.Command{
	Use:   "login USER",
	Short: "Sign in and save the session to the active profile",
	Long: `Sign in with a bot password or account password and save the session
cookies to the active profile.

The password is read from WIKICTL_PASSWORD, or from the first line of stdin
with --password-stdin.

Examples:
  printf '%s\n' "$PW" | wikictl login Alice@bot --password-stdin
  WIKICTL_PASSWORD=... wikictl -p work login Alice@bot`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user := args[0]
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		svc, err := e.service(cmd.Context())
		if err != nil {
			return err
		}

		s := newStream[wikiops.LoginResult](cmd, e, "login")
		s.run(user, svc.Login(user, password), func(res wikiops.LoginResult) error {
			if err := saveLogin(cmd.Context(), e, res.UserName); err != nil {
				return err
			}
			return e.out.Emit(res)
		})
		return s.finish()
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the active profile's session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		svc, err := e.service(cmd.Context())
		if err != nil {
			return err
		}

		s := newStream[string](cmd, e, "logout")
		s.run("", svc.Logout(), func(name string) error {
			session, err := e.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			session.LogOut()
			if err := e.db.SessionRepository().Save(cmd.Context(), session); err != nil {
				return fmt.Errorf("saving profile %q: %w", session.Profile(), err)
			}
			return emitMessage(e, "Logged out %s", name)
		})
		return s.finish()
	},
}

func readPassword(cmd *cobra.Command) (string, error) {
	if passwordStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("empty password on stdin")
		}
		return password, nil
	}
	if password := os.Getenv("WIKICTL_PASSWORD"); password != "" {
		return password, nil
	}
	return "", errors.New("no password: set WIKICTL_PASSWORD or pass --password-stdin")
}

// saveLogin binds the profile to the client's endpoint and stores its
// cookies under username.
func saveLogin(ctx context.Context, e *env, username string) error {
	session, err := e.loadSession(ctx)
	if err != nil {
		return err
	}
	session.SetEndpoint(e.client.Endpoint())
	if err := session.LogIn(username, toDomainCookies(e.client.ExportCookies())); err != nil {
		return err
	}
	if err := e.db.SessionRepository().Save(ctx, session); err != nil {
		return fmt.Errorf("saving profile %q: %w", session.Profile(), err)
	}
	return nil
}

func init() {
	loginCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
