package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/wikictl/internal/bridge"
	"github.com/zjrosen/wikictl/internal/wiki"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Full-text search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return runSingle(cmd, "search", query, func(ctx context.Context, e *env) (bridge.Operation[[]wiki.SearchHit], error) {
			svc, err := e.service(ctx)
			if err != nil {
				return nil, err
			}
			return svc.Search(query, searchLimit), nil
		})
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
