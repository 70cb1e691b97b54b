package commands

import (
	"context"
	"time"

	"github.com/apk-analysis/hermes-go/internal/watcher"
	"github.com/spf13/cobra"
)

func newWatchCommand(e *env) *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Analyze <docid>.apk files dropped into an inbox directory",
		Long: `Watch a directory for APK files named after the app ID they belong to. Each file
is analyzed once its size is stable and the findings are attached to the matching app
record. Files with an unknown app ID are left in place.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.watch(cmd.Context(), keep)
		},
	}

	cmd.Flags().String("inbox", "inbox/", "directory to watch for APK files")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep files after they have been analyzed")
	e.bind(cmd, "inbox", "watcher.inbox_dir")
	return cmd
}

func (e *env) watch(ctx context.Context, keep bool) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runner := e.newRunner(nil, st.apps)
	inbox := watcher.NewInboxHandler(st.apps, runner.AnalyzeFile, keep, e.logger)

	fw, err := watcher.NewFileWatcher(e.cfg.Watcher.InboxDir, watcher.Options{
		Pattern:      "*.apk",
		Debounce:     time.Duration(e.cfg.Watcher.DebounceMs) * time.Millisecond,
		ScanExisting: true,
	}, inbox.Handle, e.logger)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	e.logger.Infof("File watcher started for directory: %s", fw.GetWatchDir())

	<-ctx.Done()
	return fw.Stop()
}
