package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV or XLSX lead file into the default tenant",
	Example: `  crm import --file leads.csv
  crm import --file export.xlsx --config prod.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(importFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", importFile, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if limit := a.cfg.ImportMaxBytes; limit > 0 && int64(len(data)) > limit {
			return fmt.Errorf("%s is larger than import_max_bytes (%d)", importFile, limit)
		}

		importer := service.NewImporter(a.gateway, a.store, a.cfg.ImportChunkSize, a.metrics, a.logger)
		return runImport(ctx, importer, a, filepath.Base(importFile), data)
	},
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "lead file (.csv, .tsv or .xlsx)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func runImport(ctx context.Context, importer *service.Importer, a *app, name string, data []byte) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Importing "+name),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWriter(os.Stderr),
	)
	progress := port.ProgressFunc(func(percent int) {
		_ = bar.Set(percent)
	})

	res, err := importer.ImportFile(ctx, a.session(), name, data, progress)
	if err != nil {
		_ = bar.Exit()
		fmt.Fprintln(os.Stderr)
		return err
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	fmt.Printf("imported %d of %d rows (%d dropped, %d failed chunks)\n",
		len(res.Contacts), res.TotalRows, res.Dropped, res.FailedChunks)
	return nil
}
