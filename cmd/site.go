package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/wikictl/internal/bridge"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/presentation"
	"github.com/zjrosen/wikictl/internal/wiki"
	"github.com/zjrosen/wikictl/internal/wikiops"
)

var discoverUse bool

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Inspect and locate wikis",
}

var siteInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the wiki's general site information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSingle(cmd, "site info", "", func(ctx context.Context, e *env) (bridge.Operation[wiki.SiteInfo], error) {
			svc, err := e.service(ctx)
			if err != nil {
				return nil, err
			}
			return svc.FetchSiteInfo(), nil
		})
	},
}

var siteDiscoverCmd = &cobra.Command{
	Use:   "discover URL...",
	Short: "Find the api.php endpoint behind wiki page URLs",
	Long: `Find the api.php endpoint behind one or more wiki page URLs.

The page's EditURI (RSD) link is followed when present; otherwise the usual
/w/api.php and /api.php locations are probed.

Examples:
  wikictl site discover https://en.wikipedia.org/wiki/Go
  wikictl site discover --use https://wiki.example.org/`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecords(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if discoverUse && len(records) != 1 {
			return fmt.Errorf("--use needs exactly one URL, got %d", len(records))
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		opts := e.clientOptions("")
		s := newStream[string](cmd, e, "site discover")
		for _, record := range records {
			ok := s.run(record, wikiops.DiscoverEndpoint(record, opts), func(endpoint string) error {
				if discoverUse {
					if err := useEndpoint(cmd.Context(), e, endpoint); err != nil {
						return err
					}
				}
				return e.out.Emit(endpoint)
			})
			if !ok {
				break
			}
		}
		return s.finish()
	},
}

// useEndpoint makes endpoint the profile's saved endpoint.
func useEndpoint(ctx context.Context, e *env, endpoint string) error {
	session, err := e.loadSession(ctx)
	if err != nil {
		return err
	}
	if session.LoggedIn() && session.Endpoint() != endpoint {
		log.Info(log.CatCmd, "Endpoint changed, dropping login", "profile", session.Profile(), "user", session.Username())
	}
	session.SetEndpoint(endpoint)
	if err := e.db.SessionRepository().Save(ctx, session); err != nil {
		return fmt.Errorf("saving profile %q: %w", session.Profile(), err)
	}
	return nil
}

// runSingle runs one operation through a handler. It is the shape of
// commands that take no records.
func runSingle[T any](cmd *cobra.Command, command, target string,
	build func(ctx context.Context, e *env) (bridge.Operation[T], error),
) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close(cmd.Context())

	op, err := build(cmd.Context(), e)
	if err != nil {
		return err
	}
	s := newStream[T](cmd, e, command)
	s.run(target, op, nil)
	return s.finish()
}

// emitMessage writes a one-line confirmation.
func emitMessage(e *env, format string, args ...any) error {
	return e.out.Emit(presentation.MessageDTO{Message: fmt.Sprintf(format, args...)})
}

func init() {
	siteDiscoverCmd.Flags().BoolVar(&discoverUse, "use", false, "save the discovered endpoint to the active profile")
	siteCmd.AddCommand(siteInfoCmd, siteDiscoverCmd)
	rootCmd.AddCommand(siteCmd)
}
