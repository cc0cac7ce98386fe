package commands

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/storefront-sku-lookup/internal/app"
	"github.com/maltedev/storefront-sku-lookup/internal/models"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [sku...]",
	Short: "Look up SKUs and print the results",
	Long: `Look up each SKU on the storefront and print one result per SKU, in
input order. SKUs come from the arguments and from --file.`,
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().StringP("file", "f", "", "file containing SKUs (one per line, # for comments)")
	lookupCmd.Flags().Bool("headless", true, "run browser in headless mode")
	lookupCmd.Flags().String("engine", "", "browser engine: playwright, chromedp or static")
	lookupCmd.Flags().Int("workers", 0, "concurrent lookups (overrides CRAWL_WORKERS)")
	lookupCmd.Flags().StringP("output", "o", "json", "output format: json, jsonl, csv, text")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	if flags.Changed("headless") {
		cfg.Browser.Headless, _ = flags.GetBool("headless")
	}
	if v, _ := flags.GetString("engine"); v != "" {
		cfg.Browser.Engine = v
	}
	if v, _ := flags.GetInt("workers"); v > 0 {
		cfg.Crawl.Workers = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	inputFile, _ := flags.GetString("file")
	ids, err := collectIdentifiers(args, inputFile)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no SKUs given: pass them as arguments or with --file")
	}

	format, _ := flags.GetString("output")
	if !validFormat(format) {
		return fmt.Errorf("unknown output format %q", format)
	}

	crawler, err := app.NewCrawler(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build crawler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, err := crawler.LookupBatch(ctx, ids)
	if err != nil {
		return err
	}

	return writeOutcomes(cmd.OutOrStdout(), format, outcomes)
}

// collectIdentifiers returns the argument SKUs as given, followed by those
// read from path. File lines are trimmed; blank lines and # comments are
// skipped.
func collectIdentifiers(args []string, path string) ([]string, error) {
	ids := append([]string(nil), args...)

	if path == "" {
		return ids, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			ids = append(ids, line)
		}
	}

	return ids, nil
}

func validFormat(format string) bool {
	switch format {
	case "json", "jsonl", "csv", "text":
		return true
	}
	return false
}

func writeOutcomes(w io.Writer, format string, outcomes []models.Outcome) error {
	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, o := range outcomes {
			if err := enc.Encode(o); err != nil {
				return err
			}
		}
		return nil
	case "csv":
		return writeCSV(w, outcomes)
	case "text":
		return writeText(w, outcomes)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(outcomes)
	}
}

func writeCSV(w io.Writer, outcomes []models.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"input", "found", "sku", "name", "price", "brand", "url", "image_url", "message"}); err != nil {
		return err
	}

	for _, o := range outcomes {
		row := []string{o.Identifier, "false", "", "", "", "", "", "", o.Message}
		if o.Found() {
			r := o.Record
			row = []string{o.Identifier, "true", r.SKU, r.Name, r.Price, r.Brand, r.SourceURL, r.ImageURL, ""}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeText(w io.Writer, outcomes []models.Outcome) error {
	for _, o := range outcomes {
		var err error
		if o.Found() {
			r := o.Record
			_, err = fmt.Fprintf(w, "SKU: %s\nName: %s\nPrice: %s\nBrand: %s\nURL: %s\nImage: %s\n---\n",
				r.SKU, r.Name, r.Price, r.Brand, r.SourceURL, r.ImageURL)
		} else {
			_, err = fmt.Fprintf(w, "SKU: %s\nResult: %s (%s)\n---\n", o.Identifier, o.Kind, o.Message)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
