package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"judgecore/internal/cli/command"
	"judgecore/internal/cli/config"
	httpclient "judgecore/internal/cli/http"
	"judgecore/internal/cli/repl"
	"judgecore/internal/cli/state"
)

const defaultConfigPath = "configs/judgectl.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	statePath := flag.String("state", "", "Override session state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	defaults, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		return
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	session, err := repl.New(client, command.Registry(), &defaults, cfg.StatePath, cfg.PrettyJSON != nil && *cfg.PrettyJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init repl failed: %v\n", err)
		return
	}
	session.Run(context.Background())
}
