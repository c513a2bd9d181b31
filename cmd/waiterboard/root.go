package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"waiterboard/config"
	"waiterboard/infra/store"
	"waiterboard/infra/store/pebblestore"
	"waiterboard/infra/store/sqlstore"
	"waiterboard/logging"
)

// app carries what every subcommand needs once flags and config are parsed.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:           "waiterboard",
		Short:         "Pharmacy waiter board: order tracking with staff and patient displays",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg

			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "debug | info | warn | error")
	flags.String("log-format", "json", "json | console")
	flags.String("store-driver", "pebble", "pebble | sqlite | postgres")
	flags.String("store-path", "data/store", "pebble directory or sqlite file")
	flags.String("store-dsn", "", "postgres connection string")

	for key, flag := range map[string]string{
		"log.level":    "log-level",
		"log.format":   "log-format",
		"store.driver": "store-driver",
		"store.path":   "store-path",
		"store.dsn":    "store-dsn",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSeedCmd(a),
		newSettingsCmd(a),
		newAuditCmd(a),
		newBoardCmd(a),
		newSnapshotCmd(a),
	)
	return cmd
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "pebble":
		return pebblestore.Open(pebblestore.Config{Dir: cfg.Path})
	case "sqlite":
		return sqlstore.Open(sqlstore.DriverSQLite, cfg.Path)
	case "postgres":
		return sqlstore.Open(sqlstore.DriverPostgres, cfg.DSN)
	default:
		return nil, errors.Newf("unknown store driver %q", cfg.Driver)
	}
}
