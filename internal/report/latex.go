package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apk-analysis/hermes-go/internal/stats"
)

// WriteTexTable 输出 tabular 表格，表头和表尾加粗
func WriteTexTable(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)

	cols := len(t.Header)
	align := "l"
	if cols > 1 {
		align += "|" + strings.TrimSuffix(strings.Repeat("r|", cols-1), "|")
	}
	fmt.Fprintf(bw, "\\begin{tabular}{|%s|} \n", align)
	bw.WriteString("\\hline \n")

	writeTexRow(bw, bold(t.Header))
	bw.WriteString("\\hline \n")

	for _, row := range t.Rows {
		writeTexRow(bw, row)
	}

	if t.Footer != nil {
		bw.WriteString("\\hline \n")
		writeTexRow(bw, bold(t.Footer))
	}

	bw.WriteString("\\end{tabular}")
	return bw.Flush()
}

func writeTexRow(w *bufio.Writer, row []string) {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = FixRow(c)
	}
	w.WriteString(strings.Join(cells, " & "))
	w.WriteString(" \\\\ \\hline\n")
}

func bold(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = `\textbf{` + c + `}`
	}
	return out
}

// WriteTexGraph 输出 pgfplots 横向柱状图；Line 为 true 时在上方坐标轴绘制百分比折线
func WriteTexGraph(w io.Writer, g Graph) error {
	bw := bufio.NewWriter(w)

	maxValue := 0
	labels := make([]string, len(g.Bars))
	for i, bar := range g.Bars {
		if bar.Value > maxValue {
			maxValue = bar.Value
		}
		labels[i] = "{" + bar.Label + "}"
	}
	xmax := stats.RoundUp(maxValue)
	if !g.Line {
		// 柱子本身就是百分比
		xmax = 100
	}
	coords := strings.Join(labels, ",")
	height := graphHeight(len(g.Bars))

	bw.WriteString("\\begin{tikzpicture}\n")
	bw.WriteString("\\begin{axis}[\n")
	fmt.Fprintf(bw, "\txbar, xmin=0, xmax=%d,\n", xmax)
	fmt.Fprintf(bw, "\twidth=5cm, height=%scm,\n", height)
	bw.WriteString("\taxis x line*=bottom,\n")
	bw.WriteString("\txlabel={Apps},\n")
	fmt.Fprintf(bw, "\tsymbolic y coords={%s},\n", coords)
	bw.WriteString("\tytick=data]\n")
	bw.WriteString("\t\\addplot coordinates {\n")
	for _, bar := range g.Bars {
		fmt.Fprintf(bw, "\t\t(%d,{%s})\n", bar.Value, bar.Label)
	}
	bw.WriteString("\t};\n")
	bw.WriteString("\\end{axis}\n")

	if g.Line {
		bw.WriteString("\\begin{axis}[\n")
		bw.WriteString("\txmin=0, xmax=100,\n")
		fmt.Fprintf(bw, "\twidth=5cm, height=%scm,\n", height)
		bw.WriteString("\taxis x line*=top,\n")
		bw.WriteString("\taxis y line*=none,\n")
		bw.WriteString("\txlabel={Percentage}, xlabel near ticks,\n")
		fmt.Fprintf(bw, "\tsymbolic y coords={%s},\n", coords)
		bw.WriteString("\tytick=data,\n")
		bw.WriteString("\tyticklabels={,,}]\n")
		bw.WriteString("\t\\addplot+[sharp plot] coordinates {\n")
		for _, bar := range g.Bars {
			fmt.Fprintf(bw, "\t\t(%d,{%s})\n", bar.Percent, bar.Label)
		}
		bw.WriteString("\t};\n")
		bw.WriteString("\\end{axis}\n")
	}

	bw.WriteString("\\end{tikzpicture}\n")
	return bw.Flush()
}

// WriteTexStackedGraph 输出 pgfplots 横向堆叠柱状图
func WriteTexStackedGraph(w io.Writer, g StackedGraph) error {
	bw := bufio.NewWriter(w)

	maxSum := 0.0
	labels := make([]string, len(g.Data))
	for i, s := range g.Data {
		sum := 0.0
		for _, v := range s.Values {
			sum += v
		}
		maxSum = math.Max(maxSum, sum)
		labels[i] = "{" + s.Label + "}"
	}
	legends := make([]string, len(g.Legend))
	for i, l := range g.Legend {
		legends[i] = "{" + l.Name + "}"
	}

	bw.WriteString("\\begin{tikzpicture}\n")
	bw.WriteString("\\begin{axis}[\n")
	fmt.Fprintf(bw, "\txbar stacked, xmin=0, xmax=%d,\n", stats.RoundUp(int(math.Ceil(maxSum))))
	fmt.Fprintf(bw, "\twidth=.8\\textwidth, height=%scm,\n", graphHeight(len(g.Data)))
	bw.WriteString("\tscaled ticks=false,\n")
	bw.WriteString("\ttick label style={/pgf/number format/fixed},\n")
	bw.WriteString("\taxis x line*=bottom,\n")
	bw.WriteString("\taxis y line*=none,\n")
	bw.WriteString("\ttick label style={font=\\footnotesize},\n")
	bw.WriteString("\tlegend style={font=\\footnotesize},\n")
	bw.WriteString("\tlabel style={font=\\footnotesize},\n")
	fmt.Fprintf(bw, "\tsymbolic y coords={%s},\n", strings.Join(labels, ","))
	bw.WriteString("\tytick=data,,\n")
	bw.WriteString("\txlabel={Apps},\n")
	bw.WriteString("\tarea legend,\n")
	fmt.Fprintf(bw, "\tlegend style={legend columns=%d,at={(0,-0.1)},anchor=north west,draw=none},\n", len(g.Legend))
	bw.WriteString("\tenlarge y limits=0.1]\n")
	fmt.Fprintf(bw, "\\legend{%s}\n", strings.Join(legends, ","))

	for i, l := range g.Legend {
		fmt.Fprintf(bw, "\t\\addplot[fill=%s] coordinates {\n", l.Color)
		for _, s := range g.Data {
			v := 0.0
			if i < len(s.Values) {
				v = s.Values[i]
			}
			fmt.Fprintf(bw, "\t\t(%s,{%s})\n", formatNumber(v), s.Label)
		}
		bw.WriteString("\t};\n")
	}
	bw.WriteString("\\end{axis}\n")
	bw.WriteString("\\end{tikzpicture}\n")
	return bw.Flush()
}

// graphHeight 图高度（厘米）：2.4 + 0.6 * 行数，保留两位小数
func graphHeight(rows int) string {
	return formatNumber(math.Round((2.4+0.6*float64(rows))*100) / 100)
}

// formatNumber 整数值保留一位小数（3.0），其余按最短表示
func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTex 把报告的全部表格和图写入目录：table_<name>.tex、<graph>.tex
func WriteTex(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create folder for storing generated reports: %w", err)
	}

	for _, t := range r.Tables {
		t := t
		if err := writeFile(filepath.Join(dir, "table_"+t.Name+".tex"), func(w io.Writer) error {
			return WriteTexTable(w, t)
		}); err != nil {
			return err
		}
	}
	for _, g := range r.Graphs {
		g := g
		if err := writeFile(filepath.Join(dir, g.Name+".tex"), func(w io.Writer) error {
			return WriteTexGraph(w, g)
		}); err != nil {
			return err
		}
	}
	for _, g := range r.Stacked {
		g := g
		if err := writeFile(filepath.Join(dir, g.Name+".tex"), func(w io.Writer) error {
			return WriteTexStackedGraph(w, g)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
