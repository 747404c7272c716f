package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/enrich"
	"github.com/sells-group/catalog-cli/internal/model"
)

// newBatchCmd builds the command that runs op over pending products.
func newBatchCmd(op model.Operation, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(op),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			env, err := initEnv(ctx, "enrich")
			if err != nil {
				return err
			}
			defer env.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			force, _ := cmd.Flags().GetBool("force")

			res, err := env.Enricher.Run(ctx, op, limit, force)
			if res != nil {
				if werr := writeJSON(os.Stdout, res); werr != nil {
					return werr
				}
			}
			return batchError(res, err)
		},
	}
	cmd.Flags().Int("limit", 0, "max products to process (default enrich.batch_limit)")
	cmd.Flags().Bool("force", false, "reprocess products that already have a result")
	return cmd
}

// reprocessFunc forces one operation on a single product.
type reprocessFunc func(o *enrich.Orchestrator, ctx context.Context, productID int64) (*enrich.ItemResult, error)

// newReprocessCmd builds a command that reruns an operation on one product.
func newReprocessCmd(use string, run reprocessFunc, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <product-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			env, err := initEnv(ctx, "enrich")
			if err != nil {
				return err
			}
			defer env.Close()

			item, err := run(env.Enricher, ctx, id)
			if item != nil {
				if werr := writeJSON(os.Stdout, item); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}

var (
	categorizeCmd   = newBatchCmd(model.OpCategorize, "Categorize uncategorized products")
	describeCmd     = newBatchCmd(model.OpDescribe, "Generate descriptions for categorized products")
	anomalyCmd      = newBatchCmd(model.OpAnomaly, "Score categorized products for data anomalies")
	recategorizeCmd = newReprocessCmd("recategorize", (*enrich.Orchestrator).Recategorize, "Force categorization of one product")
	regenerateCmd   = newReprocessCmd("regenerate", (*enrich.Orchestrator).Regenerate, "Force a new description for one product")
)

func init() {
	rootCmd.AddCommand(categorizeCmd, describeCmd, anomalyCmd, recategorizeCmd, regenerateCmd)
}
