package report

import (
	"math"
	"strconv"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/stats"
)

// Table 报告表格；Name 同时用作 LaTeX 文件名 table_<Name>.tex
type Table struct {
	Name   string     `json:"name"`
	Title  string     `json:"title"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Footer []string   `json:"footer,omitempty"`
}

// Bar 柱状图的一根柱子
type Bar struct {
	Label   string `json:"label"`
	Value   int    `json:"value"`
	Percent int    `json:"percent"`
}

// Graph 横向柱状图，Line 为 true 时叠加百分比折线
type Graph struct {
	Name string `json:"name"`
	Bars []Bar  `json:"bars"`
	Line bool   `json:"line"`
}

// Legend 堆叠图图例
type Legend struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Series 堆叠图的一行，Values 与图例一一对应
type Series struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

// StackedGraph 横向堆叠柱状图
type StackedGraph struct {
	Name   string   `json:"name"`
	Legend []Legend `json:"legend"`
	Data   []Series `json:"data"`
}

// Report 一次统计生成的全部表格和图
type Report struct {
	Tables  []*Table       `json:"tables"`
	Graphs  []Graph        `json:"graphs"`
	Stacked []StackedGraph `json:"stacked_graphs"`
}

// Options 排行榜长度
type Options struct {
	TopSize         int
	CategoryTopSize int
}

// DefaultOptions 全局前 50，分类前 10
func DefaultOptions() Options {
	return Options{TopSize: 50, CategoryTopSize: 10}
}

// Table 按名称查找表格
func (r *Report) Table(name string) (*Table, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// TableNames 全部表格名称（生成顺序）
func (r *Report) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for _, t := range r.Tables {
		names = append(names, t.Name)
	}
	return names
}

// metric 按分类统计的一列
type metric struct {
	name  string
	title string
	count func(a *stats.Accumulator) int
}

// 计数-比例成对的表格：全部与 naive
var pairedMetrics = []struct {
	all, naive metric
}{
	{
		all:   metric{"trustmanagers", "TrustManager", func(a *stats.Accumulator) int { return a.TrustManagers }},
		naive: metric{"naive_trustmanagers", "Naive TrustManager", func(a *stats.Accumulator) int { return a.NaiveTrustManagers }},
	},
	{
		all:   metric{"hostname_verifiers", "HostnameVerifier", func(a *stats.Accumulator) int { return a.HostnameVerifiers }},
		naive: metric{"naive_hostname_verifiers", "Naive HostnameVerifier", func(a *stats.Accumulator) int { return a.NaiveHostnameVerifiers }},
	},
}

var singleMetrics = []metric{
	{"ssl_socket_factories", "Insecure SSLSocketFactory", func(a *stats.Accumulator) int { return a.InsecureFactories }},
	{"allow_all_hostname_verifiers", "AllowAllHostnameVerifier", func(a *stats.Accumulator) int { return a.AllowAllHostnameVerifiers }},
	{"on_received_ssl_error_handlers", "onReceivedSslError", func(a *stats.Accumulator) int { return a.SSLErrorHandlers }},
	{"native", "Native", func(a *stats.Accumulator) int { return a.Native }},
	{"custom", "Custom", func(a *stats.Accumulator) int { return a.Custom }},
	{"naive", "Naive", func(a *stats.Accumulator) int { return a.Naive }},
	{"bad", "Bad", func(a *stats.Accumulator) int { return a.Bad }},
}

// verifierTypeNames 验证方式汇总表的行名
var verifierTypeNames = map[domain.Classification]string{
	domain.ClassNative: "Native or none",
	domain.ClassCustom: "Custom",
	domain.ClassNaive:  "Naive",
	domain.ClassBad:    "Bad",
}

// Build 从统计快照生成报告
func Build(snap *stats.Snapshot, opts Options) *Report {
	b := &builder{snap: snap, report: &Report{}}

	b.internet()
	for _, m := range pairedMetrics {
		b.paired(m.all, m.naive)
	}
	for _, m := range singleMetrics {
		b.single(m)
	}
	b.sections()
	b.verifierType()
	b.topApps(opts)

	return b.report
}

type builder struct {
	snap   *stats.Snapshot
	report *Report
}

func (b *builder) addTable(t *Table) {
	b.report.Tables = append(b.report.Tables, t)
}

func (b *builder) addGraph(name string, bars []Bar) {
	b.report.Graphs = append(b.report.Graphs, Graph{Name: name, Bars: bars, Line: true})
}

// barsOf 从表格行取出标签、数值和百分比列
func barsOf(rows [][]string, label, value, percent int) []Bar {
	bars := make([]Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, barOf(row, label, value, percent))
	}
	return bars
}

func barOf(row []string, label, value, percent int) Bar {
	v, _ := strconv.Atoi(row[value])
	return Bar{
		Label:   row[label],
		Value:   v,
		Percent: int(stats.ParseNumber(row[percent])),
	}
}

// categoryRows 每个分类一行，按 sortCol 的百分比降序
func (b *builder) categoryRows(row func(name string, a *stats.Accumulator) []string, sortCol int) [][]string {
	names := b.snap.CategoryNames()
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, row(FixName(name), &b.snap.Categories[name].Accumulator))
	}
	stats.SortDesc(rows, func(r []string) float64 {
		return stats.ParseNumber(r[sortCol])
	})
	return rows
}

func (b *builder) internet() {
	row := func(name string, a *stats.Accumulator) []string {
		return []string{name, itoa(a.Total), itoa(a.Internet), stats.Percentage(a.Internet, a.Total)}
	}
	total := &b.snap.Total
	rows := b.categoryRows(row, 3)

	b.addTable(&Table{
		Name:   "internet",
		Title:  "Internet permission",
		Header: []string{"Category", "Total", "Internet permission", "Internet permission"},
		Rows:   rows,
		Footer: row("Total", total),
	})
	b.addGraph("graph_internet", ReverseAlphabetical(barsOf(rows, 0, 2, 3)))
}

func (b *builder) paired(all, naive metric) {
	row := func(name string, a *stats.Accumulator) []string {
		checked := a.Checked()
		return []string{
			name,
			itoa(all.count(a)),
			itoa(naive.count(a)),
			stats.Percentage(all.count(a), checked),
			stats.Percentage(naive.count(a), checked),
		}
	}
	rows := b.categoryRows(row, 4)

	b.addTable(&Table{
		Name:   all.name,
		Title:  all.title,
		Header: []string{"Category", all.title, naive.title, all.title, naive.title},
		Rows:   rows,
		Footer: row("Total", &b.snap.Total),
	})
	b.addGraph("graph_"+all.name, ReverseAlphabetical(barsOf(rows, 0, 1, 3)))
	b.addGraph("graph_"+naive.name, ReverseAlphabetical(barsOf(rows, 0, 2, 4)))
}

func (b *builder) single(m metric) {
	row := func(name string, a *stats.Accumulator) []string {
		return []string{name, itoa(m.count(a)), stats.Percentage(m.count(a), a.Checked())}
	}
	rows := b.categoryRows(row, 2)

	b.addTable(&Table{
		Name:   m.name,
		Title:  m.title,
		Header: []string{"Category", m.title, m.title},
		Rows:   rows,
		Footer: row("Total", &b.snap.Total),
	})
	b.addGraph("graph_"+m.name, ReverseAlphabetical(barsOf(rows, 0, 1, 2)))
}

// sections 按年份、下载量、评分统计 bad 应用
func (b *builder) sections() {
	sections := []struct {
		name   string
		column string
		labels []string
		accs   map[string]*stats.Accumulator
	}{
		{"years", "Year", b.snap.YearNames(), b.snap.Years},
		{"downloads", "Downloads", stats.DownloadBuckets, b.snap.Downloads},
		{"ratings", "Rating", stats.RatingBuckets, b.snap.Ratings},
	}

	for _, s := range sections {
		rows := make([][]string, 0, len(s.labels))
		for _, label := range s.labels {
			a, ok := s.accs[label]
			if !ok {
				a = stats.NewAccumulator()
			}
			rows = append(rows, []string{label, itoa(a.Bad), stats.Percentage(a.Bad, a.Checked())})
		}

		b.addTable(&Table{
			Name:   s.name,
			Title:  "Bad apps by " + s.column,
			Header: []string{s.column, "Bad", "Bad"},
			Rows:   rows,
		})
		b.addGraph("graph_"+s.name, barsOf(rows, 0, 1, 2))
	}
}

func (b *builder) verifierType() {
	total := &b.snap.Total
	checked := total.Checked()

	rows := make([][]string, 0, len(domain.Classifications))
	overall := make([]float64, 0, len(domain.Classifications))
	legend := make([]Legend, 0, len(domain.Classifications))
	for _, c := range domain.Classifications {
		n := total.Count(c)
		rows = append(rows, []string{verifierTypeNames[c], itoa(n), stats.Percentage(n, checked)})
		overall = append(overall, float64(n))
		legend = append(legend, Legend{Name: c.GetDisplayName(), Color: c.GetColor()})
	}

	b.addTable(&Table{
		Name:   "verifier_type",
		Title:  "Verifier type",
		Header: []string{"Verifier type", "Apps", "Percentage"},
		Rows:   rows,
	})

	b.report.Stacked = append(b.report.Stacked, StackedGraph{
		Name:   "graph_verifier_type",
		Legend: legend,
		Data:   []Series{{Label: "Verifier type", Values: overall}},
	})

	// 各分类中四种方式的占比，naive + bad 占比高的在前
	names := b.snap.CategoryNames()
	data := make([]Series, 0, len(names))
	for _, name := range names {
		a := &b.snap.Categories[name].Accumulator
		classified := a.Classified()
		values := make([]float64, 0, len(domain.Classifications))
		for _, c := range domain.Classifications {
			values = append(values, roundTo(stats.PercentValue(a.Count(c), classified), 3))
		}
		data = append(data, Series{Label: FixName(name), Values: values})
	}
	stats.SortDesc(data, func(s Series) float64 {
		return s.Values[2] + s.Values[3]
	})

	b.report.Stacked = append(b.report.Stacked, StackedGraph{
		Name:   "graph_verifier_type_categories",
		Legend: legend,
		Data:   data,
	})
}

func (b *builder) topApps(opts Options) {
	for _, c := range domain.Classifications {
		b.addTable(topTable("top_apps_"+string(c), "Top "+c.GetDisplayName()+" apps", b.snap.Top[c], opts.TopSize))
	}
	for _, name := range b.snap.CategoryNames() {
		cs := b.snap.Categories[name]
		for _, c := range domain.Classifications {
			b.addTable(topTable(
				"top_apps_"+name+"_"+string(c),
				"Top "+c.GetDisplayName()+" apps in "+FixName(name),
				cs.Top[c],
				opts.CategoryTopSize,
			))
		}
	}
}

func topTable(name, title string, entries []stats.TopEntry, size int) *Table {
	if size >= 0 && len(entries) > size {
		entries = entries[:size]
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Title, e.Creator, e.Downloads})
	}
	return &Table{
		Name:   name,
		Title:  title,
		Header: []string{"Name", "Developer", "Downloads"},
		Rows:   rows,
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
