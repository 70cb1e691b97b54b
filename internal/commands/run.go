package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// runOptions run 命令的阶段开关
type runOptions struct {
	outputOptions
	skipDownload bool
	browse       bool
}

func newRunCommand(e *env) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download and analyze apps, then generate statistics",
		Long: `Run the complete survey: optionally browse the store (--browse), download and
analyze pending apps, then generate statistics files and print the report tables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.skipDownload, "no-download", "D", false, "skip downloading and analysing apps")
	f.BoolVarP(&opts.skipGenerating, "no-generating", "G", false, "skip generating statistic files")
	f.BoolVarP(&opts.skipPrinting, "no-printing", "P", false, "skip printing statistic output")
	f.BoolVar(&opts.browse, "browse", false, "fetch app lists from the store before analyzing")
	e.addMarketFlags(cmd)
	e.addBrowseFlags(cmd)
	e.addProcessFlags(cmd)
	e.addReportFlags(cmd)
	return cmd
}

// validate 除 -D 外需要登录信息；三个阶段不能全部跳过
func (e *env) validate(opts runOptions) error {
	if !opts.skipDownload {
		if err := e.cfg.Market.ValidateCredentials(); err != nil {
			return err
		}
	}
	if opts.skipDownload && opts.skipAll() {
		return ErrNothingToDo
	}
	return nil
}

func (e *env) run(cmd *cobra.Command, opts runOptions) error {
	if err := e.validate(opts); err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if !opts.skipDownload {
		client, err := e.login(ctx)
		if err != nil {
			return err
		}
		if opts.browse {
			if _, err := e.browse(ctx, client, st.apps); err != nil {
				return err
			}
		}
		if _, err := e.process(ctx, client, st); err != nil {
			return err
		}
	}

	count, err := st.apps.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNoApps
	}

	if opts.skipAll() {
		fmt.Fprintln(e.out, "done")
		return nil
	}
	snap, err := e.snapshotFrom(ctx, st)
	if err != nil {
		return err
	}
	return e.output(snap, opts.outputOptions)
}
