package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable 用 go-pretty 渲染单个表格
func RenderTable(t *Table) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Format.Header = text.FormatUpper
	tbl.Style().Format.Footer = text.FormatDefault

	tbl.AppendHeader(toRow(t.Header))
	for _, row := range t.Rows {
		tbl.AppendRow(toRow(row))
	}
	if t.Footer != nil {
		tbl.AppendFooter(toRow(t.Footer))
	}

	// 数值列右对齐
	configs := make([]table.ColumnConfig, 0, len(t.Header))
	for i := 1; i < len(t.Header); i++ {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignRight,
			AlignHeader: text.AlignRight,
			AlignFooter: text.AlignRight,
		})
	}
	tbl.SetColumnConfigs(configs)

	return tbl.Render()
}

// RenderConsole 依次打印全部表格，空的排行榜跳过
func RenderConsole(w io.Writer, r *Report) error {
	for _, t := range r.Tables {
		if len(t.Rows) == 0 && t.Footer == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n%s\n\n", t.Title, RenderTable(t)); err != nil {
			return err
		}
	}
	return nil
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
