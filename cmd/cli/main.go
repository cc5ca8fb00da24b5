package cli

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vpnda/fio-sync/db"
	"github.com/vpnda/fio-sync/pkg/config"
	"github.com/vpnda/fio-sync/pkg/http/fio"
	"github.com/vpnda/fio-sync/pkg/services"
)

// Execute executes the root command
func Execute() error {
	return newRootCmd().Execute()
}

// app holds what the commands share. It is filled in before a command runs.
type app struct {
	configPath string
	dbPath     string
	orgID      string

	cfg      *config.Config
	logger   zerolog.Logger
	database db.DBInterface
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "fio-sync",
		Short: "Sync Fio bank statements into a local ledger",
		Long: `fio-sync pulls account statements from the Fio banking API and stores
the transactions in a SQLite database, one idempotent upsert per transaction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "Path to the SQLite database (overrides db_path)")
	rootCmd.PersistentFlags().StringVar(&a.orgID, "org", "", "Tenant to operate on (overrides default_org)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the current configuration",
		Long:  `Show the configuration loaded from the config file, with defaults applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showConfig(cmd)
		},
	}

	rootCmd.AddCommand(
		newSyncCmd(a),
		newAccountCmd(a),
		newTransactionsCmd(a),
		configCmd,
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.orgID != "" {
		cfg.DefaultOrg = a.orgID
	}
	a.cfg = cfg

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(cfg.Level())
	a.logger = log.Logger
	return nil
}

// store opens and initializes the database on first use.
func (a *app) store() (db.DBInterface, error) {
	if a.database != nil {
		return a.database, nil
	}

	database, err := db.New(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.database = database
	return database, nil
}

func (a *app) close() error {
	if a.database == nil {
		return nil
	}
	err := a.database.Close()
	a.database = nil
	return err
}

func (a *app) newSyncer(store services.Store) *services.Syncer {
	client := fio.NewClient(a.cfg.FioClientOptions(a.logger)...)
	return services.NewSyncer(store, client, a.cfg.SyncerOptions(), services.WithLogger(a.logger))
}

func (a *app) showConfig(cmd *cobra.Command) error {
	data, err := yaml.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", a.configPath, data)
	return nil
}
