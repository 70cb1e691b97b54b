package commands

import (
	"context"
	"fmt"

	"github.com/apk-analysis/hermes-go/internal/report"
	"github.com/apk-analysis/hermes-go/internal/service"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/spf13/cobra"
)

// outputOptions 统计输出阶段的开关
type outputOptions struct {
	skipGenerating bool
	skipPrinting   bool
}

func (o outputOptions) skipAll() bool {
	return o.skipGenerating && o.skipPrinting
}

func newReportCommand(e *env) *cobra.Command {
	var (
		opts      outputOptions
		fromStats string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate statistics, LaTeX tables and console output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.skipAll() {
				return ErrNothingToDo
			}

			var (
				snap *stats.Snapshot
				err  error
			)
			if fromStats != "" {
				snap, err = report.ReadStats(fromStats)
			} else {
				snap, err = e.snapshot(cmd.Context())
			}
			if err != nil {
				return err
			}
			if snap.Total.Total == 0 {
				return ErrNoApps
			}
			return e.output(snap, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.skipGenerating, "no-generating", "G", false, "skip generating statistic files")
	f.BoolVarP(&opts.skipPrinting, "no-printing", "P", false, "skip printing statistic output")
	f.StringVar(&fromStats, "from-stats", "", "build the report from a saved statistics file instead of the database")
	e.addReportFlags(cmd)
	return cmd
}

// snapshot 从数据库聚合一次统计
func (e *env) snapshot(ctx context.Context) (*stats.Snapshot, error) {
	st, err := e.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return e.snapshotFrom(ctx, st)
}

func (e *env) snapshotFrom(ctx context.Context, st *store) (*stats.Snapshot, error) {
	svc := service.NewStatsService(st.apps, e.reportOptions(), nil, e.logger)
	return svc.Snapshot(ctx)
}

// output 写出 stats.json 和 LaTeX 文件，并在终端打印表格
func (e *env) output(snap *stats.Snapshot, opts outputOptions) error {
	fmt.Fprintln(e.out, "generating output")
	r := report.Build(snap, e.reportOptions())

	if !opts.skipGenerating {
		if err := report.WriteStats(e.cfg.Report.StatsFile, snap); err != nil {
			return err
		}
		if err := report.WriteTex(e.cfg.Report.TexDir, r); err != nil {
			return err
		}
		e.logger.WithField("tex_dir", e.cfg.Report.TexDir).Info("LaTeX reports written")
	}

	if !opts.skipPrinting {
		if err := report.RenderConsole(e.out, r); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(e.out, "done")
	}
	return nil
}
