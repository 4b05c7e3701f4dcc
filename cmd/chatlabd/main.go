// Command chatlabd is the worker-host daemon: a thin stdio+newline-delimited
// JSON shim around internal/worker.Host, letting an external shell launch
// this binary as a subprocess without adopting any particular IPC mechanism.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatlab/chatlab-core/internal/bootstrap"
	"github.com/chatlab/chatlab-core/internal/config"
	"github.com/chatlab/chatlab-core/internal/logging"
)

func main() {
	configPath := flag.String("config", "chatlabd.yaml", "path to the daemon's bootstrap config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	baseDir := filepath.Dir(*configPath)
	cfg = bootstrap.ResolvePaths(cfg, baseDir)

	logger, err := logging.Setup(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "set up logging:", err)
		os.Exit(1)
	}
	entry := logger.WithField("component", "chatlabd")

	proc, err := bootstrap.New(cfg, entry)
	if err != nil {
		entry.Fatalf("bootstrap: %v", err)
	}
	defer proc.Close()

	entry.Info("chatlabd ready, reading requests from stdin")
	if err := runLoop(proc, bufio.NewReader(os.Stdin), os.Stdout, entry); err != nil {
		entry.Fatalf("request loop: %v", err)
	}
}
