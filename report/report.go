// Package report writes batch tagging results to an Excel workbook and
// reads them back.
package report

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	DetailSheet  = "标签对比分析"
	SummarySheet = "统计汇总"
)

var detailHeader = []string{"序号", "图片路径", "预测标签", "路径标签", "是否包含", "耗时(秒)", "成本(元)", "标签数", "状态", "错误信息"}

// Row is one processed image.
type Row struct {
	ImagePath      string
	Tags           []string
	ElapsedSeconds float64
	Cost           float64
	Status         string
	Error          string
}

// PathLabel derives the expected label from the image's parent directory.
// Test sets are laid out as "<n>、<label>/<image>"; without the separator
// the whole directory name is the label.
func PathLabel(imagePath string) string {
	dir := filepath.Base(filepath.Dir(imagePath))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	if i := strings.LastIndex(dir, "、"); i >= 0 {
		return strings.TrimSpace(dir[i+len("、"):])
	}
	return dir
}

// Contains reports whether any tag mentions label.
func Contains(tags []string, label string) bool {
	if label == "" {
		return false
	}
	for _, t := range tags {
		if strings.Contains(t, label) {
			return true
		}
	}
	return false
}

// Summary aggregates a batch.
type Summary struct {
	Total        int
	Succeeded    int
	SuccessRate  float64 // percent
	TotalElapsed float64
	TotalCost    float64
	AverageCost  float64
	LabelHits    int
}

// Summarize computes batch totals. Average cost is over successful images.
func Summarize(rows []Row) Summary {
	var s Summary
	s.Total = len(rows)
	for _, r := range rows {
		s.TotalElapsed += r.ElapsedSeconds
		s.TotalCost += r.Cost
		if r.Status == "success" {
			s.Succeeded++
		}
		if Contains(r.Tags, PathLabel(r.ImagePath)) {
			s.LabelHits++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total) * 100
	}
	if s.Succeeded > 0 {
		s.AverageCost = s.TotalCost / float64(s.Succeeded)
	}
	return s
}

// Write saves rows to path as a two-sheet workbook.
func Write(path string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DetailSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}

	st, err := newStyles(f)
	if err != nil {
		return err
	}
	if err := writeDetail(f, st, rows); err != nil {
		return err
	}
	if err := writeSummary(f, st, Summarize(rows)); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

type styles struct {
	header, hit, miss int
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error
	st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2E75B6"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return st, fmt.Errorf("header style: %w", err)
	}
	st.hit, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return st, fmt.Errorf("hit style: %w", err)
	}
	st.miss, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return st, fmt.Errorf("miss style: %w", err)
	}
	return st, nil
}

func writeDetail(f *excelize.File, st styles, rows []Row) error {
	if err := setRow(f, DetailSheet, 1, toAny(detailHeader)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(detailHeader), 1)
	if err := f.SetCellStyle(DetailSheet, "A1", last, st.header); err != nil {
		return err
	}

	for i, r := range rows {
		n := i + 2
		label := PathLabel(r.ImagePath)
		hit := Contains(r.Tags, label)
		contains := "-"
		if label != "" {
			contains = "否"
			if hit {
				contains = "是"
			}
		}
		values := []any{
			i + 1,
			r.ImagePath,
			strings.Join(r.Tags, "|"),
			label,
			contains,
			round(r.ElapsedSeconds, 2),
			round(r.Cost, 4),
			len(r.Tags),
			r.Status,
			r.Error,
		}
		if err := setRow(f, DetailSheet, n, values); err != nil {
			return err
		}
		if label != "" {
			cell, _ := excelize.CoordinatesToCellName(5, n)
			style := st.miss
			if hit {
				style = st.hit
			}
			if err := f.SetCellStyle(DetailSheet, cell, cell, style); err != nil {
				return err
			}
		}
	}

	widths := map[string]float64{"A": 8, "B": 50, "C": 80, "D": 16, "E": 10, "F": 10, "G": 12, "H": 8, "I": 10, "J": 40}
	for col, w := range widths {
		if err := f.SetColWidth(DetailSheet, col, col, w); err != nil {
			return err
		}
	}
	return f.SetPanes(DetailSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, st styles, s Summary) error {
	rows := [][]any{
		{"指标", "数值"},
		{"图片总数", s.Total},
		{"成功数", s.Succeeded},
		{"成功率(%)", round(s.SuccessRate, 2)},
		{"路径标签命中数", s.LabelHits},
		{"总耗时(秒)", round(s.TotalElapsed, 2)},
		{"总成本(元)", round(s.TotalCost, 4)},
		{"平均成本(元)", round(s.AverageCost, 4)},
	}
	for i, r := range rows {
		if err := setRow(f, SummarySheet, i+1, r); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", st.header); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "A", 20)
}

func setRow(f *excelize.File, sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func round(v float64, places int) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return r
}

// Read loads the detail rows of a report.
func Read(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()

	raw, err := f.GetRows(DetailSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", DetailSheet, err)
	}
	var rows []Row
	for i, cols := range raw {
		if i == 0 || len(cols) < 9 {
			continue
		}
		r := Row{ImagePath: cols[1], Status: cols[8]}
		if cols[2] != "" {
			r.Tags = strings.Split(cols[2], "|")
		}
		r.ElapsedSeconds, _ = strconv.ParseFloat(cols[5], 64)
		r.Cost, _ = strconv.ParseFloat(cols[6], 64)
		if len(cols) > 9 {
			r.Error = cols[9]
		}
		rows = append(rows, r)
	}
	return rows, nil
}
