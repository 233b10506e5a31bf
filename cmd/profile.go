package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/wikictl/internal/config"
	"github.com/zjrosen/wikictl/internal/presentation"
)

var historyLimit int

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved sessions",
	Long: `A profile names one saved session: an endpoint and, after login, the
account and cookies for it. The active profile comes from --profile,
WIKICTL_PROFILE or the config file, in that order.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		sessions, err := e.db.SessionRepository().List(cmd.Context())
		if err != nil {
			return err
		}
		dtos := make([]presentation.SessionDTO, 0, len(sessions))
		for _, s := range sessions {
			dtos = append(dtos, presentation.FromSession(s, s.Profile() == cfg.Profile))
		}
		return e.out.Emit(dtos)
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Make NAME the default profile in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveProfile(cfgPath, args[0]); err != nil {
			return fmt.Errorf("saving default profile: %w", err)
		}
		out := presentation.NewFormatter(cmd.OutOrStdout(), cfg.Output)
		defer func() { _ = out.Close() }()
		return out.Emit(presentation.MessageDTO{Message: fmt.Sprintf("Default profile is now %s (%s)", args[0], cfgPath)})
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Delete a saved profile and its cookies",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		if err := e.db.SessionRepository().Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		return emitMessage(e, "Removed profile %s", args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently processed records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		invocations, err := e.db.InvocationRepository().Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		dtos := make([]presentation.InvocationDTO, 0, len(invocations))
		for _, inv := range invocations {
			dtos = append(dtos, presentation.FromInvocation(inv))
		}
		return e.out.Emit(dtos)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show (0 for all)")

	profileCmd.AddCommand(profileListCmd, profileUseCmd, profileRemoveCmd)
	rootCmd.AddCommand(profileCmd, historyCmd)
}
