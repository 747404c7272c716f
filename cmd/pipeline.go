package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run ingestion and enrichment phases in order",
	Long: `Runs the selected phases in order: ingest, categorize, describe, anomaly.
A failing phase is recorded and counted; later phases still run. With no
phase flags every phase runs (ingest only when --input is given).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		flags := model.RunFlags{}
		flags.Ingest, _ = cmd.Flags().GetBool("ingest")
		flags.Categorize, _ = cmd.Flags().GetBool("categorize")
		flags.Describe, _ = cmd.Flags().GetBool("describe")
		flags.Anomaly, _ = cmd.Flags().GetBool("anomaly")
		flags.Inputs, _ = cmd.Flags().GetStringSlice("input")
		flags.Source, _ = cmd.Flags().GetString("source")
		flags.Format, _ = cmd.Flags().GetString("format")
		flags.Limit, _ = cmd.Flags().GetInt("limit")
		flags.Force, _ = cmd.Flags().GetBool("force")

		if !flags.Ingest && !flags.Categorize && !flags.Describe && !flags.Anomaly {
			flags.Ingest = len(flags.Inputs) > 0
			flags.Categorize, flags.Describe, flags.Anomaly = true, true, true
		}
		if flags.Ingest && len(flags.Inputs) == 0 {
			return eris.New("pipeline: --ingest requires at least one --input")
		}

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		run := env.Runner.Run(ctx, flags)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			if err := writeJSON(os.Stdout, run); err != nil {
				return err
			}
		} else {
			fmt.Fprint(os.Stdout, pipeline.FormatRun(run))
		}

		if run.Outcome != model.BatchStatusSuccess {
			return eris.New(run.Error)
		}
		return nil
	},
}

func init() {
	f := pipelineCmd.Flags()
	f.Bool("ingest", false, "run the ingestion phase")
	f.Bool("categorize", false, "run the categorization phase")
	f.Bool("describe", false, "run the description phase")
	f.Bool("anomaly", false, "run the anomaly phase")
	f.StringSlice("input", nil, "record input (file path or URL); repeatable")
	f.String("source", "", "source base URL or registered source name for inputs")
	f.String("format", "", "input format: json, jsonl, csv or xlsx")
	f.Int("limit", 0, "max products per enrichment phase (default enrich.batch_limit)")
	f.Bool("force", false, "reprocess products that already have a result")
	f.Bool("json", false, "print the run as JSON")
	rootCmd.AddCommand(pipelineCmd)
}
