package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xbora/mio/internal/syncer"
	"github.com/xbora/mio/internal/types"
)

func init() {
	rootCmd.AddCommand(shareCmd)
	shareCmd.AddCommand(shareListCmd, shareSyncCmd)

	outputFlag(shareListCmd)
	shareSyncCmd.Flags().String("direction", string(types.OwnerToRecipient), "owner_to_recipient or recipient_to_owner")
	shareSyncCmd.Flags().String("kind", "", "force the tabular or vector engine (default: the share's skill type)")
	outputFlag(shareSyncCmd)
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Inspect and sync shared skills",
}

var shareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List shared skills",
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

		list, err := a.shareReg.List(ctx)
		if err != nil {
			return fmt.Errorf("list shares: %w", err)
		}
		if asYAML {
			return writeYAML(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No shared skills.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSKILL\tTYPE\tOWNER\tRECIPIENT\tSTATUS\tINVITED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID,
				s.SkillName,
				s.SkillType,
				s.OwnerUserID,
				s.RecipientUserID,
				s.Status,
				s.InviteSentAt.Format(time.RFC3339),
			)
		}
		return w.Flush()
	},
}

var shareSyncCmd = &cobra.Command{
	Use:   "sync <share-id>",
	Short: "Sync a shared skill in one direction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, err := wantYAML(cmd)
		if err != nil {
			return err
		}
		rawDir, _ := cmd.Flags().GetString("direction")
		dir, err := types.ParseDirection(rawDir)
		if err != nil {
			return err
		}
		kind, _ := cmd.Flags().GetString("kind")
		switch types.SkillType(kind) {
		case "", types.SkillTabular, types.SkillVector:
		default:
			return fmt.Errorf("unknown kind %q", kind)
		}

		cfg := loadConfig()
		setupLogging(cfg)
		ctx := context.Background()
		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.syncer.SyncAs(ctx, types.ShareID(args[0]), dir, types.SkillType(kind))
		if err != nil && !(errors.Is(err, syncer.ErrNothingSynced) && res != nil) {
			return err
		}
		if asYAML {
			if yerr := writeYAML(cmd.OutOrStdout(), res); yerr != nil {
				return yerr
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		for _, ie := range res.Errors {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s failed: %s\n", ie.Operation, ie.Error)
		}
		return err
	},
}
