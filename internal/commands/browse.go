package commands

import (
	"context"
	"fmt"

	"github.com/apk-analysis/hermes-go/internal/market"
	"github.com/apk-analysis/hermes-go/internal/progress"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newBrowseCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Fetch app lists from the store into the app database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := e.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			client, err := e.login(cmd.Context())
			if err != nil {
				return err
			}
			_, err = e.browse(cmd.Context(), client, st.apps)
			return err
		},
	}
	e.addMarketFlags(cmd)
	e.addBrowseFlags(cmd)
	return cmd
}

// browse 抓取应用列表，进度输出到终端
func (e *env) browse(ctx context.Context, client market.Client, apps repository.AppRepository) (*market.BrowseResult, error) {
	m := e.cfg.Market
	b := market.NewBrowser(client, apps, e.logger, m.Limit, m.Offset)

	console := progress.NewConsole(e.out, "fetching app list in category")
	b.OnProgress(console.Func())

	result, err := b.Browse(ctx, m.Category, m.Subcategory)
	if err != nil {
		console.Done("fetching app lists stopped")
		return result, fmt.Errorf("browse: %w", err)
	}
	console.Done("done fetching app lists")

	fmt.Fprintf(e.out, "found %s apps in %d lists, %s new\n",
		humanize.Comma(int64(result.Seen)), result.Lists, humanize.Comma(int64(result.Created)))
	return result, nil
}
