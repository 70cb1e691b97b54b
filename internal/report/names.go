package report

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 标题化时保持小写的词（首词除外）
var smallWords = map[string]bool{
	"a": true, "an": true, "of": true, "the": true,
	"is": true, "and": true, "with": true, "by": true,
}

// FixName 把分类 ID 转换为显示名称，例如 BOOKS_AND_REFERENCE -> Books and Reference
func FixName(category string) string {
	words := strings.Split(strings.ToLower(strings.ReplaceAll(category, "_", " ")), " ")
	for i, w := range words {
		if i > 0 && smallWords[w] {
			continue
		}
		words[i] = capitalize(w)
	}

	switch fixed := strings.Join(words, " "); fixed {
	case "App Wallpaper":
		return "Live Wallpaper"
	case "App Widgets":
		return "Widgets"
	default:
		return fixed
	}
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if size == 0 {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}

// FixRow 转义 LaTeX 特殊字符
func FixRow(cell string) string {
	return strings.NewReplacer("%", `\%`, "&", `\&`).Replace(cell)
}

// ReverseAlphabetical 按标签逆字母序排列柱状图数据（pgfplots 自下而上绘制，显示为正序）
func ReverseAlphabetical(bars []Bar) []Bar {
	out := append([]Bar(nil), bars...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Label > out[j].Label
	})
	return out
}
