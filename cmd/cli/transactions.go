package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vpnda/fio-sync/pkg/models"
)

func newTransactionsCmd(a *app) *cobra.Command {
	var (
		accountID int64
		limit     int
		output    string
		details   bool
	)

	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"list"},
		Short:   "List the latest stored transactions",
		Long:    `List the latest stored transactions of the tenant, or of one account with --account.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			store, err := a.store()
			if err != nil {
				return err
			}

			var account *int64
			if cmd.Flags().Changed("account") {
				account = lo.ToPtr(accountID)
			}
			transactions, err := store.ListTransactions(cmd.Context(), a.cfg.DefaultOrg, account, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case output == "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(transactions)
			case details:
				for i := range transactions {
					transactions[i].PrintFormatted()
				}
			default:
				printTransactions(out, transactions)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&accountID, "account", 0, "Only list transactions of this account")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of transactions")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&details, "details", false, "Print every field of each transaction")
	return cmd
}

func printTransactions(w io.Writer, transactions []models.Transaction) {
	if len(transactions) == 0 {
		fmt.Fprintln(w, "No transactions found")
		return
	}

	fmt.Fprintf(w, "Found %d transactions:\n\n", len(transactions))
	fmt.Fprintf(w, "%-8s %-12s %-22s %18s %-25s %-30s\n", "Account", "Date", "UID", "Amount", "Counterparty", "Message")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, t := range transactions {
		amount := "-"
		if t.Amount.Valid {
			amount = models.FormatMoney(t.Amount.Decimal, t.Currency)
		}
		counterparty := lo.CoalesceOrEmpty(t.CounterpartyName, t.CounterpartyAccount)
		fmt.Fprintf(w, "%-8d %-12s %-22s %18s %-25s %-30s\n",
			t.AccountID,
			lo.CoalesceOrEmpty(t.BookingDateString(), "-"),
			t.UID[:min(22, len(t.UID))],
			amount,
			counterparty[:min(25, len(counterparty))],
			t.Message[:min(30, len(t.Message))])
	}
}
