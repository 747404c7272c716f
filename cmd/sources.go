package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/ingest"
	"github.com/sells-group/catalog-cli/internal/model"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage product sources",
}

// -- sources list --

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sources, err := st.ListSources(ctx)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources registered.")
			return nil
		}
		formatSourcesList(os.Stdout, sources)
		return nil
	},
}

// -- sources seed --

var sourcesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register sources from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.Ingest.SourcesFile
		}
		sources, err := ingest.LoadSources(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		created, err := ingest.SeedSources(ctx, st, sources)
		if err != nil {
			return err
		}
		zap.L().Info("sources seeded",
			zap.String("file", path),
			zap.Int("defined", len(sources)),
			zap.Int("created", created),
		)
		fmt.Fprintf(os.Stdout, "%d sources defined, %d created\n", len(sources), created)
		return nil
	},
}

func init() {
	sourcesSeedCmd.Flags().String("file", "", "sources YAML file (default ingest.sources_file)")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesSeedCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// formatSourcesList writes a tabular list of sources to out.
func formatSourcesList(out io.Writer, sources []model.Source) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tBASE_URL\tKIND\tENABLED\tLAST_INGESTED")
	for _, s := range sources {
		last := "-"
		if s.LastIngestedAt != nil {
			last = s.LastIngestedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n", s.ID, s.Name, s.BaseURL, s.Kind, s.Enabled, last)
	}
	_ = w.Flush()
}
