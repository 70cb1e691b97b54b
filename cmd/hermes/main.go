package main

import (
	"os"

	"github.com/apk-analysis/hermes-go/internal/commands"
)

// 由 -ldflags 注入
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(commands.Execute(commands.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}))
}
