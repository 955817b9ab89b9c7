package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xbora/mio/internal/types"
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userSetCmd, userListCmd)

	userSetCmd.Flags().String("email", "", "email address")
	userSetCmd.Flags().String("name", "", "full name")
	userSetCmd.Flags().String("first-name", "", "first name")
	userSetCmd.Flags().String("phone", "", "WhatsApp/SMS number in E.164")
	userSetCmd.Flags().String("vault-key", "", "vault API key")
	userSetCmd.Flags().String("ai-name", "", "name of the user's AI")
	outputFlag(userListCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the user directory",
}

// userFlags maps flag names onto the user fields they set.
var userFlags = []struct {
	flag  string
	field func(u *types.User) *string
}{
	{"email", func(u *types.User) *string { return &u.Email }},
	{"name", func(u *types.User) *string { return &u.Name }},
	{"first-name", func(u *types.User) *string { return &u.FirstName }},
	{"phone", func(u *types.User) *string { return &u.WhatsAppNumber }},
	{"vault-key", func(u *types.User) *string { return &u.VaultKey }},
	{"ai-name", func(u *types.User) *string { return &u.AIName }},
}

var userSetCmd = &cobra.Command{
	Use:   "set <user-id>",
	Short: "Create or update a user; only the given flags change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		id := types.UserID(args[0])
		user, err := a.users.Get(ctx, id)
		if types.IsNotFound(err) {
			user, err = &types.User{ID: id}, nil
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		changed := false
		for _, f := range userFlags {
			if cmd.Flags().Changed(f.flag) {
				*f.field(user), _ = cmd.Flags().GetString(f.flag)
				changed = true
			}
		}
		if !changed {
			return errors.New("nothing to set; pass at least one field flag")
		}
		if err := a.users.Upsert(ctx, user); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %s saved.\n", id)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
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

		list, err := a.users.List(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if asYAML {
			for _, u := range list {
				if u.VaultKey != "" {
					u.VaultKey = "***"
				}
			}
			return writeYAML(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No users.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tNAME\tPHONE\tAI\tVAULT")
		for _, u := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
				u.ID, u.Email, u.DisplayName(""), u.WhatsAppNumber, u.AIName, u.VaultKey != "")
		}
		return w.Flush()
	},
}
