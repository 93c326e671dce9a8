// Command server runs the voclink group-communication relay.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/voclink/voclink/pkg/logging"
	"github.com/voclink/voclink/pkg/server"
	"github.com/voclink/voclink/pkg/store"
	"github.com/voclink/voclink/pkg/version"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to YAML config file")
	logLevel := flag.String("log-level", "", "override log level ("+logging.LevelNames()+")")
	logFormat := flag.String("log-format", "", "override log format (text, json)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if err := logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	users := store.NewMemory()
	defer users.Close()

	srv := server.New(cfg, server.Dependencies{Users: users})
	slog.Info("starting", "version", version.String())
	if err := srv.Run(); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
