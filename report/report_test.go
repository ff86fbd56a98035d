package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestPathLabel(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/data/test/3、猫/001.jpg", "猫"},
		{"/data/test/1、人像、 合影/x.png", "合影"},
		{"/data/test/火锅/x.png", "火锅"},
		{"x.png", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PathLabel(tt.path), tt.path)
	}
}

func TestContains(t *testing.T) {
	tags := []string{"主体-动物（宠物）", "动物（宠物）-种类-猫"}
	assert.True(t, Contains(tags, "猫"))
	assert.False(t, Contains(tags, "狗"))
	assert.False(t, Contains(tags, ""))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Row{
		{ImagePath: "/t/1、猫/a.jpg", Tags: []string{"动物（宠物）-种类-猫"}, ElapsedSeconds: 2, Cost: 0.01, Status: "success"},
		{ImagePath: "/t/1、猫/b.jpg", ElapsedSeconds: 1, Status: "failed"},
		{ImagePath: "/t/2、狗/c.jpg", Tags: []string{"动物（宠物）-种类-猫"}, ElapsedSeconds: 3, Cost: 0.03, Status: "success"},
	})
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.InDelta(t, 66.666, s.SuccessRate, 0.01)
	assert.InDelta(t, 6.0, s.TotalElapsed, 1e-9)
	assert.InDelta(t, 0.04, s.TotalCost, 1e-9)
	assert.InDelta(t, 0.02, s.AverageCost, 1e-9)
	assert.Equal(t, 1, s.LabelHits)

	empty := Summarize(nil)
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.AverageCost)
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	rows := []Row{
		{ImagePath: "/t/1、猫/a.jpg", Tags: []string{"主体-动物（宠物）", "动物（宠物）-种类-猫"}, ElapsedSeconds: 2.346, Cost: 0.012345, Status: "success"},
		{ImagePath: "/t/1、猫/b.gif", Status: "failed", Error: "unsupported image format"},
	}
	require.NoError(t, Write(path, rows))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{DetailSheet, SummarySheet}, f.GetSheetList())

	detail, err := f.GetRows(DetailSheet)
	require.NoError(t, err)
	require.Len(t, detail, 3)
	assert.Equal(t, detailHeader, detail[0])
	assert.Equal(t, "主体-动物（宠物）|动物（宠物）-种类-猫", detail[1][2])
	assert.Equal(t, "猫", detail[1][3])
	assert.Equal(t, "是", detail[1][4])
	assert.Equal(t, "2.35", detail[1][5])
	assert.Equal(t, "否", detail[2][4])

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"图片总数", "2"}, summary[1])
	assert.Equal(t, []string{"成功数", "1"}, summary[2])
	assert.Equal(t, []string{"成功率(%)", "50"}, summary[3])

	back, err := Read(path)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, rows[0].Tags, back[0].Tags)
	assert.Equal(t, "unsupported image format", back[1].Error)
	assert.Nil(t, back[1].Tags)
	assert.Equal(t, "success", back[0].Status)
	assert.Equal(t, "failed", back[1].Status)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.xlsx"))
	assert.Error(t, err)
}
