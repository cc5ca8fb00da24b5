package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vpnda/fio-sync/pkg/models"
)

// tokenEnv is read when no token is passed on the command line, so it does
// not end up in shell history.
const tokenEnv = "FIO_TOKEN"

func newAccountCmd(a *app) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:     "account",
		Aliases: []string{"accounts"},
		Short:   "Manage the accounts of a tenant",
	}

	var (
		label      string
		token      string
		currency   string
		setDefault bool
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register an account with its Fio API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv(tokenEnv)
			}
			account := &models.Account{
				OrgID:     a.cfg.DefaultOrg,
				Label:     strings.TrimSpace(label),
				Token:     strings.TrimSpace(token),
				Currency:  strings.ToUpper(currency),
				IsDefault: setDefault,
			}
			if account.Label == "" {
				return fmt.Errorf("--label is required")
			}

			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.CreateAccount(cmd.Context(), account); err != nil {
				return err
			}
			log.Info().Int64("id", account.ID).Str("account", account.Label).Msg("Account added successfully")
			if !account.HasToken() {
				log.Warn().Str("account", account.Label).Msgf("No token stored, set one with --token or %s", tokenEnv)
			}
			return nil
		},
	}
	addCmd.Flags().StringVar(&label, "label", "", "Unique name of the account within the tenant")
	addCmd.Flags().StringVar(&token, "token", "", "Fio API token (defaults to $"+tokenEnv+")")
	addCmd.Flags().StringVar(&currency, "currency", "", "Account currency, filled from statements when empty")
	addCmd.Flags().BoolVar(&setDefault, "default", false, "Make this the default account of the tenant")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "List accounts with their sync cursor",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			accounts, err := store.ListAccounts(cmd.Context(), a.cfg.DefaultOrg)
			if err != nil {
				return err
			}
			printAccounts(cmd.OutOrStdout(), accounts)
			return nil
		},
	}

	defaultCmd := &cobra.Command{
		Use:   "default <account_id>",
		Short: "Make an account the default of the tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.SetDefaultAccount(cmd.Context(), a.cfg.DefaultOrg, id); err != nil {
				return err
			}
			log.Info().Int64("id", id).Msg("Default account updated")
			return nil
		},
	}

	tokenCmd := &cobra.Command{
		Use:   "token <account_id> [token]",
		Short: "Replace the stored Fio API token of an account",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			newToken := os.Getenv(tokenEnv)
			if len(args) == 2 {
				newToken = args[1]
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.UpdateAccountToken(cmd.Context(), a.cfg.DefaultOrg, id, strings.TrimSpace(newToken)); err != nil {
				return err
			}
			log.Info().Int64("id", id).Msg("Account token updated")
			return nil
		},
	}

	accountCmd.AddCommand(addCmd, listCmd, defaultCmd, tokenCmd)
	return accountCmd
}

func parseAccountID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", s)
	}
	return id, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func printAccounts(w io.Writer, accounts []models.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts found")
		return
	}

	fmt.Fprintf(w, "Found %d accounts:\n\n", len(accounts))
	fmt.Fprintf(w, "%-6s %-20s %-7s %-8s %-6s %-20s %-23s %18s\n",
		"ID", "Label", "Default", "Currency", "Token", "Last Sync", "Statement", "Closing Balance")
	fmt.Fprintln(w, strings.Repeat("-", 115))
	for _, account := range accounts {
		lastSync := "never"
		if account.Cursor.LastSyncAt != nil {
			lastSync = account.Cursor.LastSyncAt.UTC().Format(time.DateTime)
		}
		statement := "-"
		if account.Cursor.LastStatementStart != nil || account.Cursor.LastStatementEnd != nil {
			statement = formatDate(account.Cursor.LastStatementStart) + ".." + formatDate(account.Cursor.LastStatementEnd)
		}
		balance := "-"
		if account.Cursor.LastClosingBalance.Valid {
			balance = models.FormatMoney(account.Cursor.LastClosingBalance.Decimal, account.Currency)
		}
		fmt.Fprintf(w, "%-6d %-20s %-7s %-8s %-6s %-20s %-23s %18s\n",
			account.ID,
			account.Label[:min(20, len(account.Label))],
			lo.Ternary(account.IsDefault, "yes", ""),
			lo.CoalesceOrEmpty(account.Currency, "-"),
			lo.Ternary(account.HasToken(), "set", "none"),
			lastSync,
			statement,
			balance)
	}
}
