package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/wikictl/internal/bridge"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/textdiff"
	"github.com/zjrosen/wikictl/internal/watcher"
	"github.com/zjrosen/wikictl/internal/wiki"
	"github.com/zjrosen/wikictl/internal/wikiops"
)

var (
	getContent          bool
	getResolveRedirects bool
	getExtract          bool
	getGeo              bool

	publishFile    string
	publishSummary string
	publishMinor   bool
	publishBot     bool
	publishWatch   string
	publishFollow  bool
	publishDryRun  bool

	moveReason     string
	moveForce      bool
	moveSubpages   bool
	moveLeaveTalk  bool
	moveNoRedirect bool
	moveWatch      string
	moveDryRun     bool

	deleteReason string
	deleteWatch  string
	deleteDryRun bool

	diffFile string
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Read and change wiki pages",
}

var pageGetCmd = &cobra.Command{
	Use:   "get TITLE...",
	Short: "Show page metadata and, optionally, content",
	Long: `Show page metadata for each title, one query per title.

Examples:
  wikictl page get "Main Page"
  wikictl page get --content Sandbox > Sandbox.wiki
  wikictl page get --extract --resolve-redirects Golang
  cat titles.txt | wikictl page get -o json -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := wiki.PageQueryOptions{
			Content:          getContent,
			ResolveRedirects: getResolveRedirects,
			Extract:          getExtract,
			GeoCoordinate:    getGeo,
		}
		return runStream(cmd, args, "page get", func(ctx context.Context, e *env) (func(string) bridge.Operation[[]wiki.Page], error) {
			svc, err := e.service(ctx)
			if err != nil {
				return nil, err
			}
			return func(title string) bridge.Operation[[]wiki.Page] {
				return svc.GetPages([]string{title}, opts)
			}, nil
		})
	},
}

var pagePublishCmd = &cobra.Command{
	Use:   "publish TITLE --file FILE",
	Short: "Save a local file as a page's wikitext",
	Long: `Save the contents of a local file as the wikitext of TITLE.

With --watch the file is published again every time it changes, until
Ctrl+C.

Examples:
  wikictl page publish Sandbox --file Sandbox.wiki --summary "tidy up"
  wikictl page publish Sandbox --file Sandbox.wiki --dry-run
  wikictl page publish Sandbox --file Sandbox.wiki --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := args[0]
		watch, err := wiki.ParseWatchBehavior(publishWatch)
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

		publish := func(text []byte) bridge.Operation[wikiops.PublishResult] {
			return svc.PublishPage(wikiops.PublishRequest{
				Title:   title,
				Text:    string(text),
				Summary: publishSummary,
				Minor:   publishMinor,
				Bot:     publishBot,
				Watch:   watch,
				DryRun:  publishDryRun,
			})
		}

		var snapshots <-chan watcher.Snapshot
		if publishFollow {
			w, err := watcher.New(watcher.Config{Path: publishFile, DebounceDur: cfg.Watch.Debounce})
			if err != nil {
				return err
			}
			snapshots, err = w.Start()
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()
		}

		s := newStream[wikiops.PublishResult](cmd, e, "page publish")
		var first bridge.Operation[wikiops.PublishResult]
		if text, err := os.ReadFile(publishFile); err != nil {
			first = failedOperation[wikiops.PublishResult](fmt.Errorf("reading %s: %w", publishFile, err))
		} else {
			first = publish(text)
		}
		if !s.run(title, first, nil) || snapshots == nil {
			return s.finish()
		}

		log.Info(log.CatWatch, "Watching for changes", "file", publishFile, "title", title)
		for {
			select {
			case <-s.stopped:
				s.abandoned = true
				return s.finish()
			case snap, ok := <-snapshots:
				if !ok {
					return s.finish()
				}
				if !s.run(title, publish(snap.Content), nil) {
					return s.finish()
				}
			}
		}
	},
}

var pageMoveCmd = &cobra.Command{
	Use:   "move TITLE NEW_TITLE",
	Short: "Rename a page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, err := wiki.ParseWatchBehavior(moveWatch)
		if err != nil {
			return err
		}
		req := wikiops.MoveRequest{
			MoveRequest: wiki.MoveRequest{
				From:          args[0],
				To:            args[1],
				Reason:        moveReason,
				IgnoreWarning: moveForce,
				MoveSubpages:  moveSubpages,
				LeaveTalk:     moveLeaveTalk,
				NoRedirect:    moveNoRedirect,
				Watch:         watch,
			},
			DryRun: moveDryRun,
		}
		return runSingle(cmd, "page move", args[0], func(ctx context.Context, e *env) (bridge.Operation[wikiops.MoveResult], error) {
			svc, err := e.service(ctx)
			if err != nil {
				return nil, err
			}
			return svc.MovePage(req), nil
		})
	},
}

var pageDeleteCmd = &cobra.Command{
	Use:   "delete TITLE...",
	Short: "Delete pages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, err := wiki.ParseWatchBehavior(deleteWatch)
		if err != nil {
			return err
		}
		return runStream(cmd, args, "page delete", func(ctx context.Context, e *env) (func(string) bridge.Operation[wikiops.DeleteResult], error) {
			svc, err := e.service(ctx)
			if err != nil {
				return nil, err
			}
			return func(title string) bridge.Operation[wikiops.DeleteResult] {
				return svc.DeletePage(wikiops.DeleteRequest{
					DeleteRequest: wiki.DeleteRequest{Title: title, Reason: deleteReason, Watch: watch},
					DryRun:        deleteDryRun,
				})
			}, nil
		})
	},
}

var pageDiffCmd = &cobra.Command{
	Use:   "diff TITLE --file FILE",
	Short: "Compare a local file with a page's current wikitext",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := os.ReadFile(diffFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", diffFile, err)
		}
		return runSingle(cmd, "page diff", args[0], func(ctx context.Context, e *env) (bridge.Operation[textdiff.Result], error) {
			svc, err := e.service(ctx)
			if err != nil {
				return nil, err
			}
			return svc.DiffPage(args[0], string(local)), nil
		})
	},
}

func init() {
	f := pageGetCmd.Flags()
	f.BoolVar(&getContent, "content", false, "include the current wikitext")
	f.BoolVar(&getResolveRedirects, "resolve-redirects", false, "follow redirects to their target")
	f.BoolVar(&getExtract, "extract", false, "include a plain-text intro extract")
	f.BoolVar(&getGeo, "geo", false, "include coordinates")

	f = pagePublishCmd.Flags()
	f.StringVarP(&publishFile, "file", "f", "", "file holding the wikitext")
	f.StringVarP(&publishSummary, "summary", "m", "", "edit summary")
	f.BoolVar(&publishMinor, "minor", false, "mark the edit minor")
	f.BoolVar(&publishBot, "bot", false, "mark the edit as a bot edit")
	f.StringVar(&publishWatch, "watch-list", "", "watchlist change: watch, unwatch, none or default")
	f.BoolVarP(&publishFollow, "watch", "w", false, "publish again whenever the file changes")
	f.BoolVar(&publishDryRun, "dry-run", false, "show what would be published without saving")
	_ = pagePublishCmd.MarkFlagRequired("file")

	f = pageMoveCmd.Flags()
	f.StringVar(&moveReason, "reason", "", "reason for the move")
	f.BoolVar(&moveForce, "force", false, "ignore warnings")
	f.BoolVar(&moveSubpages, "recurse", false, "move subpages too")
	f.BoolVar(&moveLeaveTalk, "leave-talk", false, "do not move the talk page")
	f.BoolVar(&moveNoRedirect, "no-redirect", false, "do not leave a redirect behind")
	f.StringVar(&moveWatch, "watch-list", "", "watchlist change: watch, unwatch, none or default")
	f.BoolVar(&moveDryRun, "dry-run", false, "show what would be moved without moving")

	f = pageDeleteCmd.Flags()
	f.StringVar(&deleteReason, "reason", "", "reason for the deletion")
	f.StringVar(&deleteWatch, "watch-list", "", "watchlist change: watch, unwatch, none or default")
	f.BoolVar(&deleteDryRun, "dry-run", false, "show what would be deleted without deleting")

	pageDiffCmd.Flags().StringVarP(&diffFile, "file", "f", "", "local file to compare")
	_ = pageDiffCmd.MarkFlagRequired("file")

	pageCmd.AddCommand(pageGetCmd, pagePublishCmd, pageMoveCmd, pageDeleteCmd, pageDiffCmd)
	rootCmd.AddCommand(pageCmd)
}
