package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vpnda/fio-sync/pkg/models"
	"github.com/vpnda/fio-sync/pkg/utils"
)

var errSyncFailed = errors.New("one or more accounts failed to sync")

type syncFlags struct {
	requestFile string
	accountID   int64
	incremental bool
	overlapDays int
	chunkDays   int
	startDate   string
	endDate     string
	output      string
}

func newSyncCmd(a *app) *cobra.Command {
	f := &syncFlags{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch statements and upsert their transactions",
		Long: `Fetch the Fio statement of every account of the tenant, or of a single
account, and upsert the transactions. Flags override values read from --request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.requestFile, "request", "", "Read the sync request from a JSON or YAML file")
	cmd.Flags().Int64Var(&f.accountID, "account", 0, "Sync only this account")
	cmd.Flags().BoolVar(&f.incremental, "incremental", true, "Continue from the last synced date")
	cmd.Flags().IntVar(&f.overlapDays, "overlap", 0, "Days re-fetched before the last synced date")
	cmd.Flags().IntVar(&f.chunkDays, "chunk", 0, "Maximum days per request, 0 fetches the range at once")
	cmd.Flags().StringVar(&f.startDate, "start", "", "First day to fetch (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.endDate, "end", "", "Last day to fetch (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

// buildRequest merges the request file with the flags that were set explicitly.
func (f *syncFlags) buildRequest(cmd *cobra.Command, orgID string) (models.SyncRequest, error) {
	var req models.SyncRequest
	if f.requestFile != "" {
		data, err := os.ReadFile(f.requestFile)
		if err != nil {
			return req, fmt.Errorf("failed to read request file: %w", err)
		}
		// JSON documents are valid YAML.
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse request file: %w", err)
		}
	}

	if req.OrgID == "" || cmd.Flags().Changed("org") {
		req.OrgID = orgID
	}
	changed := cmd.Flags().Changed
	if changed("account") {
		req.AccountID = lo.ToPtr(f.accountID)
	}
	if changed("incremental") {
		req.Incremental = lo.ToPtr(f.incremental)
	}
	if changed("overlap") {
		req.OverlapDays = lo.ToPtr(f.overlapDays)
	}
	if changed("chunk") {
		req.ChunkDays = lo.ToPtr(f.chunkDays)
	}
	if changed("start") {
		req.StartDate = f.startDate
	}
	if changed("end") {
		req.EndDate = f.endDate
	}
	return req, nil
}

func (a *app) runSync(cmd *cobra.Command, f *syncFlags) error {
	if !lo.Contains([]string{"table", "json", "yaml"}, f.output) {
		return fmt.Errorf("unknown output format %q", f.output)
	}

	req, err := f.buildRequest(cmd, a.cfg.DefaultOrg)
	if err != nil {
		return err
	}

	store, err := a.store()
	if err != nil {
		return err
	}

	resp, err := a.newSyncer(store).Sync(cmd.Context(), req)
	if err != nil {
		return err
	}

	if err := writeSyncResponse(cmd.OutOrStdout(), f.output, resp); err != nil {
		return err
	}
	if !resp.OK {
		return errSyncFailed
	}
	return nil
}

func writeSyncResponse(w io.Writer, format string, resp *models.SyncResponse) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml":
		data, err := yaml.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to render response: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	fmt.Fprintf(w, "Sync run %s\n\n", resp.RunID)
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No accounts to sync")
		return nil
	}

	fmt.Fprintf(w, "%-6s %-20s %-8s %-23s %8s %8s %8s %15s\n",
		"ID", "Account", "Status", "Range", "Fetched", "Upserted", "New", "Total")
	fmt.Fprintln(w, strings.Repeat("-", 105))
	for _, r := range resp.Results {
		status := utils.Capitalize("ok")
		if !r.OK {
			status = utils.Capitalize("failed")
		}
		dateRange := ""
		if r.StartDate != "" {
			dateRange = r.StartDate + ".." + r.EndDate
		}
		fmt.Fprintf(w, "%-6d %-20s %-8s %-23s %8d %8d %8d %15s\n",
			r.AccountID,
			r.Label[:min(20, len(r.Label))],
			status,
			dateRange,
			r.Fetched,
			r.Upserted,
			r.Inserted,
			r.AmountTotal)
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "       warning: %s\n", warning)
		}
		if !r.OK {
			fmt.Fprintf(w, "       %s: %s\n", r.Error, r.Message)
		}
	}
	fmt.Fprintf(w, "\nFetched %d, upserted %d\n", resp.TotalFetched, resp.TotalUpserted)
	return nil
}
