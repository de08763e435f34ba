package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/use-agent/insightx/browser"
	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
	"github.com/use-agent/insightx/scraper"
)

var (
	extractRules      string
	extractScreenshot string
	extractTextOnly   bool
)

func init() {
	extractCmd.Flags().StringVar(&extractRules, "rules", "", "Rules table file (default: embedded table).")
	extractCmd.Flags().StringVar(&extractScreenshot, "screenshot", "", "Write a debug screenshot of map-review pages to this path.")
	extractCmd.Flags().BoolVar(&extractTextOnly, "text", false, "Print only the review text instead of the JSON result.")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <url> [--rules <file>] [--screenshot <file.png>] [--text]",
	Short: "Extracts the review text of one page and prints the result.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg := config.Load()
		if extractRules != "" {
			cfg.Rules.File = extractRules
		}
		if extractScreenshot != "" {
			cfg.Scraper.ScreenshotPath = extractScreenshot
		}
		// One request needs one process.
		cfg.Pool.MinProcesses = 1
		cfg.Pool.MaxProcesses = 1

		rs, err := rules.Load(cfg.Rules.File)
		if err != nil {
			return err
		}

		manager := browser.NewManager(ctx, cfg.Browser, cfg.Pool, rs)
		defer manager.Close()

		var opts []scraper.Option
		if cfg.Scraper.ExpandShortlinks {
			opts = append(opts, scraper.WithResolver(scraper.NewShortlinkResolver(cfg.Browser.DefaultProxy, cfg.Scraper.ShortlinkTimeout)))
		}
		sc := scraper.New(&scraper.RodSessions{
			Manager:       manager,
			BlockedTypes:  cfg.Scraper.BlockedResourceTypes,
			BlockTrackers: cfg.Scraper.BlockTrackers,
		}, rs, cfg.Scraper, opts...)

		res := sc.Extract(ctx, args[0])
		if err := printResult(cmd.OutOrStdout(), res, extractTextOnly); err != nil {
			return err
		}
		if !res.Succeeded() {
			cmd.SilenceUsage = true
			return resultErr(res)
		}
		return nil
	},
}

// printResult writes res as indented JSON, or just its text.
func printResult(w io.Writer, res *models.ExtractionResult, textOnly bool) error {
	if textOnly {
		if res.Text == "" {
			return nil
		}
		_, err := fmt.Fprintln(w, res.Text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// resultErr turns a failed result into the command's exit error.
func resultErr(res *models.ExtractionResult) error {
	if res.Error == "" {
		return fmt.Errorf("no review text found at %s", res.URL)
	}
	return fmt.Errorf("%s: %s", res.ErrorCode, res.Error)
}
