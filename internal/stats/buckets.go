package stats

import "time"

// Unknown 缺失值对应的桶
const Unknown = "Unknown"

const (
	Rating0to1 = "0-1"
	Rating1to2 = "1-2"
	Rating2to3 = "2-3"
	Rating3to4 = "3-4"
	Rating4to5 = "4-5"
)

const (
	Downloads0to100       = "0-100"
	Downloads100to10K     = "100-10,000"
	Downloads10Kto1M      = "10,000-1,000,000"
	Downloads1Mto100M     = "1,000,000-100,000,000"
	Downloads100MAndAbove = "100,000,000+"
)

const maxRating = 5.0

// RatingBuckets 评分桶的报表顺序
var RatingBuckets = []string{Rating0to1, Rating1to2, Rating2to3, Rating3to4, Rating4to5, Unknown}

// DownloadBuckets 下载量桶的报表顺序
var DownloadBuckets = []string{Downloads0to100, Downloads100to10K, Downloads10Kto1M, Downloads1Mto100M, Downloads100MAndAbove}

// RatingBucket 评分所在区间 (n, n+1]；未评分返回 Unknown，超过 5 归入 4-5
func RatingBucket(rating float64) string {
	label, _ := ratingBucket(rating)
	return label
}

// ratingBucket 第二个返回值表示评分超出 5 被截断
func ratingBucket(rating float64) (string, bool) {
	// NaN 也走这里
	if !(rating > 0) {
		return Unknown, false
	}
	switch {
	case rating <= 1:
		return Rating0to1, false
	case rating <= 2:
		return Rating1to2, false
	case rating <= 3:
		return Rating2to3, false
	case rating <= 4:
		return Rating3to4, false
	case rating <= maxRating:
		return Rating4to5, false
	default:
		return Rating4to5, true
	}
}

// DownloadBucket 下载量所在区间，左闭右开，最后一档无上限
func DownloadBucket(downloads int64) string {
	switch {
	case downloads < 100:
		return Downloads0to100
	case downloads < 10_000:
		return Downloads100to10K
	case downloads < 1_000_000:
		return Downloads10Kto1M
	case downloads < 100_000_000:
		return Downloads1Mto100M
	default:
		return Downloads100MAndAbove
	}
}

// YearBucket 发布年份；无日期返回 Unknown
func YearBucket(date *time.Time) string {
	if date == nil || date.IsZero() {
		return Unknown
	}
	return date.Format("2006")
}
