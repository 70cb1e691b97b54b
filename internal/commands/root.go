// Package commands 实现 hermes 命令行
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apk-analysis/hermes-go/internal/api"
	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BuildInfo 编译时注入的版本信息
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// env 所有子命令共享的运行环境，PersistentPreRunE 之后 cfg 和 logger 可用
type env struct {
	info       BuildInfo
	v          *viper.Viper
	configPath string
	verbose    bool

	// 命令行参数与配置键的绑定，只绑定正在执行的命令
	bindings map[*cobra.Command]map[string]string

	cfg    *config.Config
	logger *logrus.Logger
	out    io.Writer
}

// NewRootCommand 创建 hermes 根命令
func NewRootCommand(info BuildInfo) *cobra.Command {
	cmd, _ := newRoot(info)
	return cmd
}

func newRoot(info BuildInfo) (*cobra.Command, *env) {
	e := &env{
		info:     info,
		v:        config.NewViper(),
		bindings: make(map[*cobra.Command]map[string]string),
	}
	api.Version = info.Version

	rootCmd := &cobra.Command{
		Use:   "hermes",
		Short: "hermes - TLS certificate validation survey of marketplace apps",
		Long: `hermes browses an Android app marketplace, downloads free apps that request
the internet permission, statically checks how they validate TLS certificates and
hostnames, and reports the results per category, download range, rating and year.`,
		PersistentPreRunE: e.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default: ./config.yaml or ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newRunCommand(e),
		newBrowseCommand(e),
		newProcessCommand(e),
		newReportCommand(e),
		newServeCommand(e),
		newWorkerCommand(e),
		newWatchCommand(e),
		newExportCommand(e),
		newImportCommand(e),
		newVersionCommand(e),
	)

	return rootCmd, e
}

// Execute 运行根命令，SIGINT/SIGTERM 会取消命令的 context
func Execute(info BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(info).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// bind 把参数绑定到配置键，参数优先于配置文件和环境变量
func (e *env) bind(cmd *cobra.Command, flag, key string) {
	if e.bindings[cmd] == nil {
		e.bindings[cmd] = make(map[string]string)
	}
	e.bindings[cmd][flag] = key
}

func (e *env) setup(cmd *cobra.Command, _ []string) error {
	for flag, key := range e.bindings[cmd] {
		if err := e.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg, err := config.LoadFrom(e.v, e.configPath)
	if err != nil {
		return err
	}
	if e.verbose {
		cfg.Log.Level = "debug"
	}

	e.cfg = cfg
	e.logger = config.InitLogger(&cfg.Log, cmd.ErrOrStderr())
	e.out = cmd.OutOrStdout()
	return nil
}
