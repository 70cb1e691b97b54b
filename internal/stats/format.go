package stats

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// PercentValue 计算百分比，分母为 0 时返回 0
func PercentValue(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return 100 * float64(numerator) / float64(denominator)
}

// Percentage 格式化为两位小数加 "%"，例如 "25.00%"
func Percentage(numerator, denominator int) string {
	return fmt.Sprintf("%.2f%%", PercentValue(numerator, denominator))
}

// FormatDownloads 下载量的显示格式，例如 "50,000+"
func FormatDownloads(downloads int64) string {
	if downloads < 0 {
		downloads = 0
	}
	return humanize.Comma(downloads) + "+"
}
