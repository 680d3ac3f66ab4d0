/*
Package cli implements the gymdesk command line.

COMMANDS:

	gymdesk serve               Start the HTTP API
	gymdesk report [--period]   Print a financial report
	gymdesk plans               Print the plan catalog
	gymdesk seed <scenario>     Reset the database and load demo data
	gymdesk hash-key            Hash an admin key for admin.key_hash
	gymdesk version             Print version

Every command reads the same configuration: --config names an optional JSON
file, then .env and the environment override it.

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Routes served by "serve"
*/
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/gymdesk/api"
	"github.com/warp/gymdesk/config"
	"github.com/warp/gymdesk/finance"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/store/sqlstore"
	"github.com/warp/gymdesk/telemetry"
)

var version = "dev"

// NewRootCmd creates the root cobra command for gymdesk.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:           "gymdesk",
		Short:         "Gym membership and front-desk ledger",
		Long:          "gymdesk tracks members, plan payments, attendance and shop sales, and reports revenue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newPlansCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newHashKeyCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gymdesk", version)
		},
	}
}

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *sqlstore.Store
	clock   generic.Clock
	handler *api.Handler
}

// openApp loads configuration, opens the database and wires the services.
// Logs go to logOut so report output on stdout stays clean.
func openApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := telemetry.NewLogger(logOut, cfg.Logging.Level, cfg.Logging.Format)

	clock, err := generic.LoadClock(cfg.Business.TimeZone)
	if err != nil {
		return nil, err
	}

	store, err := sqlstore.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	svc := api.NewServices(store, plans.DefaultCatalog(), clock, logger)
	svc.Members.SetExpiringSoonDays(cfg.Business.ExpiringSoonDays)
	svc.Finance.SetHistoryMonths(cfg.Business.HistoryMonths)
	if err := svc.Finance.SetRates(finance.Rates{
		CostRatio: cfg.Business.CostRatio,
		TaxRate:   cfg.Business.TaxRate,
	}); err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     logger,
		store:   store,
		clock:   clock,
		handler: api.NewHandler(svc, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// Execute runs the root command and exits non-zero on error.
func Execute(v string) {
	if err := NewRootCmd(v).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
