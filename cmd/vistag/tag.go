package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/vistag"
)

var tagDetail bool

var tagCmd = &cobra.Command{
	Use:   "tag [image...]",
	Short: "Tag images and print the results as JSON",
	Long: `Tags each argument (http(s) URL, data URL or local path) and writes one
JSON result per line to stdout.

Example:
  vistag tag ./photos/cat.jpg https://example.com/beach.png --detail`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTag,
}

func init() {
	tagCmd.Flags().BoolVar(&tagDetail, "detail", false, "Include per-branch outcomes")
}

func runTag(cmd *cobra.Command, args []string) error {
	tagger, err := vistag.New(cfg)
	if err != nil {
		return err
	}
	defer tagger.Close()

	var opts []vistag.ProcessOption
	if tagDetail {
		opts = append(opts, vistag.WithBranchDetail())
	}
	results := tagger.ProcessBatch(cmd.Context(), args, nil, opts...)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	failed := 0
	for _, r := range results {
		if r.Status != vistag.StatusSuccess {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	if failed == len(results) {
		return fmt.Errorf("all %d images failed", failed)
	}
	return nil
}
