package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/wikictl/internal/bridge"
	"github.com/zjrosen/wikictl/internal/wiki"
	"github.com/zjrosen/wikictl/internal/wikiops"
)

var (
	uploadComment string
	uploadForce   bool
	uploadWatch   string
	uploadDryRun  bool
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Work with uploaded files",
}

var fileUploadCmd = &cobra.Command{
	Use:   "upload PATH [NAME]",
	Short: "Upload a local file",
	Long: `Upload a local file. NAME defaults to the file's base name.

Warnings such as duplicates or an existing file name are reported and the
upload is not completed unless --force is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, err := wiki.ParseWatchBehavior(uploadWatch)
		if err != nil {
			return err
		}
		params := wikiops.UploadParams{
			Path:    args[0],
			Comment: uploadComment,
			Force:   uploadForce,
			Watch:   watch,
			DryRun:  uploadDryRun,
		}
		if len(args) == 2 {
			params.Filename = args[1]
		}
		target := params.Filename
		if target == "" {
			target = filepath.Base(params.Path)
		}
		return runSingle(cmd, "file upload", target, func(ctx context.Context, e *env) (bridge.Operation[wikiops.UploadResult], error) {
			svc, err := e.service(ctx)
			if err != nil {
				return nil, err
			}
			return svc.UploadFile(params), nil
		})
	},
}

func init() {
	f := fileUploadCmd.Flags()
	f.StringVarP(&uploadComment, "comment", "m", "", "upload comment and initial page text")
	f.BoolVar(&uploadForce, "force", false, "ignore upload warnings")
	f.StringVar(&uploadWatch, "watch-list", "", "watchlist change: watch, unwatch, none or default")
	f.BoolVar(&uploadDryRun, "dry-run", false, "check the file and show what would be uploaded without uploading")

	fileCmd.AddCommand(fileUploadCmd)
	rootCmd.AddCommand(fileCmd)
}
