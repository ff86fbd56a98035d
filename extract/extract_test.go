package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFenceEquivalence(t *testing.T) {
	body := `{"性别": ["女性"], "年龄": ["青年", "青年", "中年"]}`
	want := Mapping{"性别": {"女性"}, "年龄": {"青年", "中年"}}

	inputs := map[string]string{
		"bare":         body,
		"padded":       "\n\t " + body + "  \n",
		"json fence":   "```json\n" + body + "\n```",
		"plain fence":  "```\n" + body + "\n```",
		"inline fence": "```json" + body + "```",
		"padded fence": "  ```JSON\n" + body + "\n```\n",
		"no close":     "```json\n" + body,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not json at all",
		`{"性别": ["女性"]`,
		`["女性"]`,
		"null",
		"```json\n```",
		`Sure! Here is the result: {"性别": ["女性"]}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, err := Parse(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestParseDropsNonListAndNonString(t *testing.T) {
	got, err := Parse(`{
		"性别": "女性",
		"年龄": ["青年", 3, null, {"x": 1}, " 中年 ", ""],
		"人数": [],
		"表情": null,
		"姿态": ["站立"]
	}`)
	require.NoError(t, err)
	assert.Equal(t, Mapping{"年龄": {"青年", "中年"}, "姿态": {"站立"}}, got)
}

func TestParseEmptyObject(t *testing.T) {
	got, err := Parse("{}")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{"", "```", "```json", "{", "}", "\x00\xff", `{"a":[`}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			m, err := Parse(in)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.NotNil(t, m)
		})
	}
}

func TestParseErrorShowsPreview(t *testing.T) {
	_, err := Parse(`{"性别": ["女性"], "年龄": [`)
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), `年龄`)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFence(`{"a":1}`))
	assert.Equal(t, "", StripFence("```json"))
}

func TestMappingHelpers(t *testing.T) {
	m := Mapping{"人数": {"单人"}}
	c := m.Clone()
	c["人数"][0] = "多人"

	assert.True(t, m.Has("人数", "单人"))
	assert.False(t, m.Has("人数", "多人"))
	assert.Equal(t, []string{"多人"}, c.Values("人数"))
	assert.Nil(t, m.Values("性别"))
}
