package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/pipeline"
	"github.com/sells-group/catalog-cli/internal/store"
)

// -- stats --

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		top, _ := cmd.Flags().GetInt("top")
		if top <= 0 {
			top = cfg.Enrich.TopTags
		}
		s, err := pipeline.Stats(ctx, st, top)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, s)
		}
		fmt.Fprint(os.Stdout, pipeline.FormatStats(s))
		return nil
	},
}

// -- export --

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export products with their enrichment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var w io.Writer = os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrap(err, "export: create file")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		n, err := pipeline.Export(ctx, st, w, format, filterFromFlags(cmd))
		if err != nil {
			return err
		}
		zap.L().Info("export complete", zap.String("format", format), zap.Int("products", n))
		return nil
	},
}

// -- products --

var productsCmd = &cobra.Command{
	Use:   "products [product-id]",
	Short: "List products, or show one product in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if len(args) == 1 {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			detail, err := pipeline.ProductDetail(ctx, st, id)
			if err != nil {
				return err
			}
			return writeJSON(os.Stdout, detail)
		}

		products, err := st.ListProducts(ctx, filterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "products list")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, products)
		}
		if len(products) == 0 {
			fmt.Fprintln(os.Stderr, "No products found.")
			return nil
		}
		formatProductsList(os.Stdout, products)
		return nil
	},
}

// -- history --

var historyCmd = &cobra.Command{
	Use:   "history <product-id>",
	Short: "Show the price history of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseProductID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetProduct(ctx, id); err != nil {
			return err
		}
		history, err := st.ListPriceHistory(ctx, id)
		if err != nil {
			return err
		}
		if history == nil {
			history = []model.PriceRecord{}
		}
		return writeJSON(os.Stdout, history)
	},
}

// -- audit --

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the enrichment audit log, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var filter store.AuditFilter
		filter.ProductID, _ = cmd.Flags().GetInt64("product")
		op, _ := cmd.Flags().GetString("operation")
		filter.Operation = model.Operation(op)
		if op != "" && !filter.Operation.Valid() {
			return eris.Errorf("unknown operation %q", op)
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		entries, err := st.ListAudit(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "audit list")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No audit entries found.")
			return nil
		}
		formatAuditList(os.Stdout, entries)
		return nil
	},
}

func init() {
	statsCmd.Flags().Int("top", 0, "number of top tags to show (default enrich.top_tags)")
	statsCmd.Flags().Bool("json", false, "print statistics as JSON")

	exportCmd.Flags().String("format", "json", "export format: json, csv or xlsx")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	addFilterFlags(exportCmd)

	productsCmd.Flags().Bool("json", false, "print products as JSON")
	addFilterFlags(productsCmd)

	auditCmd.Flags().Int64("product", 0, "only entries for this product id")
	auditCmd.Flags().String("operation", "", "only entries for this operation (categorize, describe, anomaly)")
	auditCmd.Flags().Int("limit", 100, "max number of entries")
	auditCmd.Flags().Bool("json", false, "print entries as JSON")

	rootCmd.AddCommand(statsCmd, exportCmd, productsCmd, historyCmd, auditCmd)
}
