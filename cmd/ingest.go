package main

import (
	"os"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <input>...",
	Short: "Ingest scraped product records",
	Long: `Loads normalized product records from local files or http(s)/ftp URLs
(json, jsonl, csv or xlsx) and upserts them into the catalog. Products are
deduplicated by source and URL; price changes are appended to price history.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		source, _ := cmd.Flags().GetString("source")
		format, _ := cmd.Flags().GetString("format")

		res, err := env.Runner.Ingest(ctx, args, source, format)
		if res != nil {
			if werr := writeJSON(os.Stdout, res); werr != nil {
				return werr
			}
		}
		return batchError(res, err)
	},
}

func init() {
	ingestCmd.Flags().String("source", "", "source base URL or registered source name (required for local files)")
	ingestCmd.Flags().String("format", "", "input format: json, jsonl, csv or xlsx (default from file extension)")
	rootCmd.AddCommand(ingestCmd)
}
