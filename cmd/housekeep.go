package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the catalog schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("schema is up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old price history and run records",
	Long: `Deletes price history and run tracking older than the retention window.
The most recent price record of every product is always kept.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = cfg.Housekeep.RetentionDays
		}
		if days <= 0 {
			return eris.New("prune: retention must be at least one day")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		before := time.Now().UTC().AddDate(0, 0, -days)
		res, err := st.PruneHistory(ctx, before)
		if err != nil {
			return err
		}
		zap.L().Info("prune complete",
			zap.Time("before", before),
			zap.Int64("price_records", res.PriceRecords),
			zap.Int64("runs", res.Runs),
			zap.Int64("phases", res.Phases),
		)
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	pruneCmd.Flags().Int("days", 0, "retention window in days (default housekeep.retention_days)")
	rootCmd.AddCommand(migrateCmd, pruneCmd)
}
