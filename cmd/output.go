package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/model"
)

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

// batchError turns a failed envelope into a command error after it has
// been printed.
func batchError(res *model.BatchResult, err error) error {
	if err != nil {
		return err
	}
	if res != nil && res.Status == model.BatchStatusError {
		return eris.New(res.Message)
	}
	return nil
}

// parseProductID parses a positive product id argument.
func parseProductID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid product id %q", arg)
	}
	return id, nil
}

// addFilterFlags registers the product filter flags on cmd.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("category", "", "only products in this category")
	cmd.Flags().Float64("min-conf", -1, "minimum categorization confidence")
	cmd.Flags().Float64("max-conf", -1, "maximum categorization confidence")
	cmd.Flags().Int64("source", 0, "only products from this source id")
	cmd.Flags().Bool("flagged", false, "only products flagged by anomaly scoring")
	cmd.Flags().Bool("enriched", false, "only products with an enrichment")
	cmd.Flags().Int("limit", 0, "max number of products (0 = no limit)")
}

// filterFromFlags builds a product filter from the flags registered by
// addFilterFlags.
func filterFromFlags(cmd *cobra.Command) model.ProductFilter {
	var f model.ProductFilter
	f.Category, _ = cmd.Flags().GetString("category")
	f.SourceID, _ = cmd.Flags().GetInt64("source")
	f.FlaggedOnly, _ = cmd.Flags().GetBool("flagged")
	f.EnrichedOnly, _ = cmd.Flags().GetBool("enriched")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	if v, _ := cmd.Flags().GetFloat64("min-conf"); v >= 0 {
		f.MinConfidence = &v
	}
	if v, _ := cmd.Flags().GetFloat64("max-conf"); v >= 0 {
		f.MaxConfidence = &v
	}
	return f
}

// formatProductsList writes a tabular list of products to out.
func formatProductsList(out io.Writer, products []model.EnrichedProduct) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tPRICE\tCATEGORY\tCONF\tRISK\tFLAGGED")
	for _, p := range products {
		price := model.FormatPrice(p.Price, p.Currency, "-")
		category, conf, risk, flagged := "-", "-", "-", ""
		if e := p.Enrichment; e != nil {
			category = e.Category
			conf = fmt.Sprintf("%.2f", e.Confidence)
			if e.RiskScore != nil {
				risk = strconv.Itoa(*e.RiskScore)
			}
			if e.Flagged {
				flagged = "yes"
			}
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, truncate(p.Title, 48), price, category, conf, risk, flagged)
	}
	_ = w.Flush()
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSCRAPED\tCATEGORIZED\tFLAGGED\tERRORS\tCREATED\tDURATION")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.Status,
			r.Counters.Scraped,
			r.Counters.Categorized,
			r.Counters.Flagged,
			r.Counters.Errors,
			r.CreatedAt.Format("2006-01-02 15:04"),
			(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}

// formatAuditList writes a tabular list of audit entries to out.
func formatAuditList(out io.Writer, entries []model.AuditEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPRODUCT\tOPERATION\tSTRATEGY\tSUCCESS\tTOKENS\tCOST\tCREATED\tERROR")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%t\t%d/%d\t$%.4f\t%s\t%s\n",
			e.ID, e.ProductID, e.Operation, e.Strategy, e.Success,
			e.InputTokens, e.OutputTokens, e.CostUSD,
			e.CreatedAt.Format("2006-01-02 15:04:05"), truncate(e.Error, 60))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
