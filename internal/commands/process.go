package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/apk-analysis/hermes-go/internal/market"
	"github.com/apk-analysis/hermes-go/internal/progress"
	"github.com/apk-analysis/hermes-go/internal/queue"
	"github.com/apk-analysis/hermes-go/internal/worker"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newProcessCommand(e *env) *cobra.Command {
	var useQueue bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Download and analyze pending apps",
		Long: `Download and analyze every free app that requests the internet permission and
has not been analyzed yet. Progress is saved as a restore point so an interrupted run
resumes where it stopped. With --queue the apps are published to RabbitMQ instead and
analyzed by "hermes worker" processes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := e.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if useQueue {
				return e.enqueue(cmd.Context(), st)
			}

			client, err := e.login(cmd.Context())
			if err != nil {
				return err
			}
			_, err = e.process(cmd.Context(), client, st)
			return err
		},
	}

	cmd.Flags().BoolVar(&useQueue, "queue", false, "publish pending apps to the job queue instead of processing them")
	e.addMarketFlags(cmd)
	e.addProcessFlags(cmd)
	return cmd
}

// process 在本进程内下载分析，进度输出到终端
func (e *env) process(ctx context.Context, client market.Client, st *store) (*worker.RunResult, error) {
	fmt.Fprintln(e.out, "starting app analyzer")

	p := worker.NewProcessor(e.newRunner(client, st.apps), st.apps, st.restore, e.cfg.Worker, e.logger)
	console := progress.NewConsole(e.out, "analyzing apps...")
	p.OnProgress(console.Func())

	result, err := p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		console.Done("analyzing interrupted, restore point saved")
		return result, fmt.Errorf("processing interrupted: %w", err)
	}
	if err != nil {
		console.Done("analyzing stopped")
		return result, fmt.Errorf("process: %w", err)
	}
	console.Done("done analyzing apps")

	fmt.Fprintf(e.out, "analyzed %s apps, %s failed\n",
		humanize.Comma(int64(result.Analyzed)), humanize.Comma(int64(result.Failed)))
	return result, nil
}

// enqueue 把待处理应用发布到 RabbitMQ
func (e *env) enqueue(ctx context.Context, st *store) error {
	mq, err := queue.NewRabbitMQ(&e.cfg.RabbitMQ, e.cfg.Worker.Concurrency, e.logger)
	if err != nil {
		return err
	}
	defer mq.Close()

	n, err := queue.NewProducer(mq, e.logger).PublishPending(ctx, st.apps)
	if err != nil {
		return fmt.Errorf("publish pending apps: %w", err)
	}

	fmt.Fprintf(e.out, "published %s apps to queue %s\n", humanize.Comma(int64(n)), mq.QueueName())
	return nil
}
