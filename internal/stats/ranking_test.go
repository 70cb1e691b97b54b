package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseNumber 测试从显示字符串中提取数值
func TestParseNumber(t *testing.T) {
	assert.Equal(t, 1000.0, ParseNumber("1,000+"))
	assert.Equal(t, 100000000.0, ParseNumber("100,000,000+"))
	assert.Equal(t, 25.5, ParseNumber("25.50%"))
	assert.Equal(t, 0.0, ParseNumber(""))
	assert.Equal(t, 0.0, ParseNumber("n/a"))
	assert.Equal(t, 0.0, ParseNumber("1.2.3"))
}

// TestSortTopEntries 测试下载量降序且相同下载量保持原顺序
func TestSortTopEntries(t *testing.T) {
	entries := []TopEntry{
		{Title: "a", Downloads: "500+"},
		{Title: "b", Downloads: "50,000+"},
		{Title: "c", Downloads: "500+"},
		{Title: "d", Downloads: "1,000,000+"},
		{Title: "e", Downloads: "500+"},
	}

	SortTopEntries(entries)

	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"d", "b", "a", "c", "e"}, titles)
}

// TestUnique 测试按内容去重
func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"GAME", "TOOLS"}, Unique([]string{"GAME", "TOOLS", "GAME"}))
	assert.Empty(t, Unique([]int{}))
}

// TestRoundUp 测试同数量级向上取整
func TestRoundUp(t *testing.T) {
	assert.Equal(t, 40, RoundUp(35))
	assert.Equal(t, 600, RoundUp(540))
	assert.Equal(t, 2000, RoundUp(1250))
	assert.Equal(t, 40, RoundUp(40))
	assert.Equal(t, 7, RoundUp(7))
	assert.Equal(t, 0, RoundUp(0))
}
