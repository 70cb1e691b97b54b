package stats

import (
	"sort"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/sirupsen/logrus"
)

// TopEntry 排行榜中的一行
type TopEntry struct {
	Title     string `json:"title"`
	Creator   string `json:"creator"`
	Downloads string `json:"downloads"`
}

// TopLists 按分类划分的排行榜
type TopLists map[domain.Classification][]TopEntry

// CategoryStats 单个分类的统计与排行
type CategoryStats struct {
	Accumulator
	Top TopLists `json:"top_apps"`
}

// Snapshot 一次聚合的完整结果，生成后只读
type Snapshot struct {
	Categories map[string]*CategoryStats `json:"categories"`
	Downloads  map[string]*Accumulator   `json:"downloads"`
	Ratings    map[string]*Accumulator   `json:"ratings"`
	Years      map[string]*Accumulator   `json:"years"`
	Total      Accumulator               `json:"total"`
	Top        TopLists                  `json:"top_apps"`
}

// CategoryNames 分类名按字母排序
func (s *Snapshot) CategoryNames() []string {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// YearNames 年份按字典序排序（Unknown 排在数字之后）
func (s *Snapshot) YearNames() []string {
	names := make([]string, 0, len(s.Years))
	for name := range s.Years {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aggregator 聚合引擎
type Aggregator struct {
	logger logrus.FieldLogger
}

// NewAggregator 创建聚合引擎，logger 可以为 nil
func NewAggregator(logger logrus.FieldLogger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate 使用静默的聚合引擎
func Aggregate(records []*domain.AppRecord) *Snapshot {
	return NewAggregator(nil).Aggregate(records)
}

// Aggregate 对全部应用做一次只读遍历，生成新的 Snapshot
func (ag *Aggregator) Aggregate(records []*domain.AppRecord) *Snapshot {
	snap := newSnapshot()
	global := newTopBuilder()
	perCategory := make(map[string]*topBuilder)

	for _, app := range sortedByID(records) {
		snap.Total.Merge(app)
		yearOf(snap, YearBucket(app.ReleaseDate)).Merge(app)

		rating, clamped := ratingBucket(app.Rating)
		if clamped && ag.logger != nil {
			ag.logger.WithFields(logrus.Fields{
				"app_id": app.ID,
				"rating": app.Rating,
			}).Warn("Rating above 5, clamped to 4-5")
		}
		snap.Ratings[rating].Merge(app)
		snap.Downloads[DownloadBucket(app.Downloads)].Merge(app)

		categories := app.CategoryNames()
		for _, name := range categories {
			cs, ok := snap.Categories[name]
			if !ok {
				cs = &CategoryStats{}
				snap.Categories[name] = cs
				perCategory[name] = newTopBuilder()
			}
			cs.Accumulator.Merge(app)
		}

		if !app.RequiresInternet {
			continue
		}
		class, ok := Classify(app)
		if !ok {
			continue
		}
		entry := TopEntry{
			Title:     app.Title,
			Creator:   app.Creator,
			Downloads: FormatDownloads(app.Downloads),
		}
		global.add(class, entry)
		for _, name := range categories {
			perCategory[name].add(class, entry)
		}
	}

	snap.Top = global.build()
	for name, cs := range snap.Categories {
		cs.Top = perCategory[name].build()
	}

	return snap
}

func newSnapshot() *Snapshot {
	snap := &Snapshot{
		Categories: make(map[string]*CategoryStats),
		Downloads:  make(map[string]*Accumulator, len(DownloadBuckets)),
		Ratings:    make(map[string]*Accumulator, len(RatingBuckets)),
		Years:      make(map[string]*Accumulator),
	}
	for _, label := range DownloadBuckets {
		snap.Downloads[label] = NewAccumulator()
	}
	for _, label := range RatingBuckets {
		snap.Ratings[label] = NewAccumulator()
	}
	return snap
}

// yearOf 年份桶按需创建
func yearOf(snap *Snapshot, label string) *Accumulator {
	acc, ok := snap.Years[label]
	if !ok {
		acc = NewAccumulator()
		snap.Years[label] = acc
	}
	return acc
}

// sortedByID 返回按 ID 排序的副本，不修改输入
func sortedByID(records []*domain.AppRecord) []*domain.AppRecord {
	out := make([]*domain.AppRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// topBuilder 构建排行榜，同一列表内按内容去重
type topBuilder struct {
	lists map[domain.Classification][]TopEntry
	seen  map[domain.Classification]map[TopEntry]struct{}
}

func newTopBuilder() *topBuilder {
	tb := &topBuilder{
		lists: make(map[domain.Classification][]TopEntry, len(domain.Classifications)),
		seen:  make(map[domain.Classification]map[TopEntry]struct{}, len(domain.Classifications)),
	}
	for _, c := range domain.Classifications {
		tb.lists[c] = []TopEntry{}
		tb.seen[c] = make(map[TopEntry]struct{})
	}
	return tb
}

func (tb *topBuilder) add(class domain.Classification, entry TopEntry) {
	if _, dup := tb.seen[class][entry]; dup {
		return
	}
	tb.seen[class][entry] = struct{}{}
	tb.lists[class] = append(tb.lists[class], entry)
}

func (tb *topBuilder) build() TopLists {
	out := make(TopLists, len(tb.lists))
	for class, entries := range tb.lists {
		SortTopEntries(entries)
		out[class] = entries
	}
	return out
}
