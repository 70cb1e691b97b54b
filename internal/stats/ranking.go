package stats

import (
	"math"
	"regexp"
	"sort"
	"strconv"
)

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// ParseNumber 从显示字符串中提取数值（"1,000+" -> 1000, "25.00%" -> 25），无法解析时返回 0
func ParseNumber(s string) float64 {
	v, err := strconv.ParseFloat(nonNumeric.ReplaceAllString(s, ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// SortTopEntries 按下载量降序稳定排序，相同下载量保持原有顺序
func SortTopEntries(entries []TopEntry) {
	SortDesc(entries, func(e TopEntry) float64 {
		return ParseNumber(e.Downloads)
	})
}

// SortDesc 按 key 降序稳定排序
func SortDesc[T any](items []T, key func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i]) > key(items[j])
	})
}

// Unique 按内容去重，保持首次出现的顺序
func Unique[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// RoundUp 向上取整到同数量级：35 -> 40, 540 -> 600, 1250 -> 2000
func RoundUp(n int) int {
	if n <= 0 {
		return 0
	}
	digits := len(strconv.Itoa(n))
	nearest := int(math.Pow10(digits - 1))
	return (n + nearest - 1) / nearest * nearest
}
