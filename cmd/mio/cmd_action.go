package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xbora/mio/internal/actions"
	"github.com/xbora/mio/internal/types"
)

func init() {
	rootCmd.AddCommand(actionCmd)
	actionCmd.AddCommand(actionListCmd, actionExecuteCmd)

	actionListCmd.Flags().String("user", "", "only list this user's actions (default: every active action)")
	outputFlag(actionListCmd)
	actionExecuteCmd.Flags().String("at", "", "execution time, ISO 8601 (default: now)")
	outputFlag(actionExecuteCmd)
}

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Inspect and run proactive actions",
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proactive actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, err := wantYAML(cmd)
		if err != nil {
			return err
		}
		ctx := context.Background()
		a, err := openApp(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		var list []*types.ProactiveAction
		if user, _ := cmd.Flags().GetString("user"); user != "" {
			list, err = a.actions.List(ctx, types.UserID(user))
		} else {
			list, err = a.actionStore.ListActive(ctx)
		}
		if err != nil {
			return fmt.Errorf("list actions: %w", err)
		}

		if asYAML {
			return writeYAML(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No proactive actions.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tTYPE\tCHANNEL\tSKILLS\tNEXT RUN\tACTIVE\tOK/FAIL")
		for _, act := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%v\t%d/%d\n",
				act.ID,
				act.UserID,
				act.ActionType,
				act.DeliveryChannel,
				strings.Join(act.SkillNames, ","),
				act.NextRunAt.Format(time.RFC3339),
				act.IsActive,
				act.SuccessCount,
				act.FailureCount,
			)
		}
		return w.Flush()
	},
}

var actionExecuteCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run one scheduling cycle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, err := wantYAML(cmd)
		if err != nil {
			return err
		}
		at := time.Now().UTC()
		if raw, _ := cmd.Flags().GetString("at"); raw != "" {
			if at, err = actions.ParseExecutionTime(raw); err != nil {
				return err
			}
		}

		cfg := loadConfig()
		setupLogging(cfg)
		ctx := context.Background()
		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.runner.RunCycle(ctx, at)
		if err != nil {
			return fmt.Errorf("run cycle: %w", err)
		}
		if a.alerter != nil {
			if err := a.alerter.CycleFinished(ctx, report); err != nil {
				fmt.Fprintf(os.Stderr, "alert failed: %v\n", err)
			}
		}

		if asYAML {
			return writeYAML(cmd.OutOrStdout(), report)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Cycle at %s: %d executed, %d skipped.\n",
			report.ExecutionTime.Format(time.RFC3339), len(report.Executed), len(report.Skipped))
		if len(report.Executed) == 0 {
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tCHANNEL\tSUCCESS\tERROR")
		for _, e := range report.Executed {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", e.ID, e.UserID, e.DeliveryChannel, e.Success, e.Error)
		}
		return w.Flush()
	},
}
