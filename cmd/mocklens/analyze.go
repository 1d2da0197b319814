package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperengineering/mocklens/internal/api"
	"github.com/hyperengineering/mocklens/internal/config"
	"github.com/hyperengineering/mocklens/internal/normalize"
	"github.com/hyperengineering/mocklens/internal/table"
	"github.com/hyperengineering/mocklens/internal/vision"
	"github.com/hyperengineering/mocklens/pkg/item"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	analyzeFormat   string
	analyzeParallel int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>...",
	Short: "Analyze mockup images against the vision model",
	Long: "Send each image to the configured vision model and print the detected UI elements. " +
		"Requires OPENAI_API_KEY; no server or database is involved.",
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "table",
		"Output format: table, json, csv")
	analyzeCmd.Flags().IntVar(&analyzeParallel, "parallel", 2,
		"Maximum images analyzed at once")
}

// newImageAnalyzer builds the analyzer used by the analyze command.
var newImageAnalyzer = func(cfg *config.Config) vision.ImageAnalyzer {
	return vision.NewOpenAI(visionConfig(cfg), newNormalizer(cfg))
}

// analysis is the outcome for one image.
type analysis struct {
	Path      string        `json:"path"`
	Model     string        `json:"model,omitempty"`
	Items     []item.Record `json:"items"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
	Warnings  []string      `json:"warnings,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	switch analyzeFormat {
	case "table", "json":
	case "csv":
		if len(args) != 1 {
			return errors.New("--format csv takes exactly one image")
		}
	default:
		return fmt.Errorf("unknown format %q (want table, json or csv)", analyzeFormat)
	}
	if analyzeParallel < 1 {
		return errors.New("--parallel must be at least 1")
	}

	cfg, err := config.LoadLocal()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	analyzer := newImageAnalyzer(cfg)

	results := analyzeAll(cmd.Context(), analyzer, args, cfg.Vision.MaxImageBytes, analyzeParallel)

	out := cmd.OutOrStdout()
	switch analyzeFormat {
	case "json":
		if len(results) == 1 {
			err = printJSON(out, results[0])
		} else {
			err = printJSON(out, results)
		}
	case "csv":
		if results[0].Error == "" {
			err = table.New(results[0].Items).ExportCSV(out)
		}
	default:
		printAnalyses(out, results)
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			if analyzeFormat != "table" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Path, r.Error)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	return nil
}

// analyzeAll runs at most limit analyses at once. A failed image is recorded
// in its result and does not stop the others.
func analyzeAll(ctx context.Context, analyzer vision.ImageAnalyzer, paths []string, maxBytes int64, limit int) []analysis {
	results := make([]analysis, len(paths))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = analyzeFile(ctx, analyzer, path, maxBytes)
			return nil
		})
	}
	g.Wait()
	return results
}

func analyzeFile(ctx context.Context, analyzer vision.ImageAnalyzer, path string, maxBytes int64) analysis {
	a := analysis{Path: path, Model: analyzer.ModelName()}

	data, err := readImageFile(path, maxBytes)
	if err != nil {
		a.Error = err.Error()
		return a
	}
	img, err := vision.DetectImage(data, filepath.Base(path))
	if err != nil {
		a.Error = err.Error()
		return a
	}

	res, err := analyzer.Analyze(ctx, img)
	if err != nil {
		a.Error = describeAnalyzeError(err)
		return a
	}
	a.Items = res.Records
	a.Truncated = res.Truncated
	a.Degraded = res.Degraded
	a.Warnings = api.Warnings(res)
	return a
}

// readImageFile reads at most maxBytes+1 so an oversized file is rejected
// without loading it whole.
func readImageFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, &vision.ImageError{Kind: vision.ErrImageTooLarge, Size: int64(len(data)), Limit: maxBytes}
	}
	return data, nil
}

// describeAnalyzeError prefers the user-facing message of upstream failures.
func describeAnalyzeError(err error) string {
	var upErr *vision.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.UserMessage()
	}
	var parseErr *normalize.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Sprintf("%v (response began: %q)", err, parseErr.Preview)
	}
	return err.Error()
}

func printAnalyses(w io.Writer, results []analysis) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s ==\n", r.Path)
		if r.Error != "" {
			fmt.Fprintf(w, "error: %s\n", r.Error)
			continue
		}
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
		if len(r.Items) > 0 {
			printRecords(w, r.Items)
		}
	}
}
