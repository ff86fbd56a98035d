package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/vistag"
	"github.com/brunobiangulo/vistag/report"
)

var (
	batchOutput  string
	batchResume  bool
	batchWorkers int
	batchLimit   int
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Tag every image under a directory and write an Excel report",
	Long: `Walks dir for .jpg, .jpeg, .png and .webp files, tags them on a bounded
worker pool and writes a workbook with a per-image sheet and a summary sheet.

Images laid out as "<n>、<label>/<image>" are checked against <label>.

With --resume, images that already succeeded in the output workbook are
skipped and their rows kept; failed or cancelled images are tagged again.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "vistag_report.xlsx", "Report path")
	batchCmd.Flags().BoolVar(&batchResume, "resume", false, "Skip images that already succeeded in the report")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "Concurrent images (default from config)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "Process at most N new images")
}

func runBatch(cmd *cobra.Command, args []string) error {
	images, err := findImages(args[0])
	if err != nil {
		return err
	}

	var previous []report.Row
	if batchResume {
		previous, err = report.Read(batchOutput)
		if err != nil {
			slog.Warn("batch: no previous report, starting fresh", "path", batchOutput, "error", err)
			previous = nil
		}
	}
	images, previous = resume(images, previous)
	if batchLimit > 0 && len(images) > batchLimit {
		images = images[:batchLimit]
	}
	if len(images) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
		return nil
	}

	if batchWorkers > 0 {
		cfg.Workers = batchWorkers
	}
	tagger, err := vistag.New(cfg)
	if err != nil {
		return err
	}
	defer tagger.Close()

	slog.Info("batch: starting", "images", len(images), "workers", cfg.Workers, "resumed", len(previous))
	start := time.Now()
	var finished atomic.Int64
	results := tagger.ProcessBatch(cmd.Context(), images, func(i int, r *vistag.Result) {
		n := finished.Add(1)
		slog.Info("batch: image done",
			"progress", fmt.Sprintf("%d/%d", n, len(images)),
			"image", r.ImageInfo,
			"status", r.Status,
			"tags", r.TotalLabelsCount,
		)
	})

	rows := append(previous, toRows(results)...)
	if err := report.Write(batchOutput, rows); err != nil {
		return err
	}

	sum := report.Summarize(rows)
	fmt.Fprintf(cmd.OutOrStdout(),
		"processed %d images in %s: %d/%d succeeded, label hits %d, total cost %.4f\nreport: %s\n",
		len(results), time.Since(start).Round(time.Second), sum.Succeeded, sum.Total, sum.LabelHits, sum.TotalCost, batchOutput)
	return nil
}

// findImages returns supported image files under root in lexical order.
func findImages(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && vistag.IsImageFile(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// resume drops images that already succeeded and keeps only their rows.
// Anything else in the previous report is queued again.
func resume(images []string, previous []report.Row) ([]string, []report.Row) {
	var kept []report.Row
	done := make(map[string]bool, len(previous))
	for _, r := range previous {
		if r.Status == vistag.StatusSuccess && !done[r.ImagePath] {
			done[r.ImagePath] = true
			kept = append(kept, r)
		}
	}
	var todo []string
	for _, img := range images {
		if !done[img] {
			todo = append(todo, img)
		}
	}
	return todo, kept
}

func toRows(results []*vistag.Result) []report.Row {
	rows := make([]report.Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, report.Row{
			ImagePath:      r.ImageInfo,
			Tags:           r.FinalLabels,
			ElapsedSeconds: r.ElapsedTime,
			Cost:           r.TokenCost,
			Status:         r.Status,
			Error:          r.Error,
		})
	}
	return rows
}
