// Command verisd runs the veris TCP server.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clstatham/veris/engine"
	"github.com/clstatham/veris/internal/config"
	"github.com/clstatham/veris/internal/dblog"
	"github.com/clstatham/veris/mvcc"
	"github.com/clstatham/veris/server"
	"github.com/clstatham/veris/storage"
)

const dataFileName = "data.log"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	defaults := config.DefaultServer()

	root := &cobra.Command{
		Use:   "verisd",
		Short: "Run the veris database server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	root.Flags().String("listen-addr", defaults.ListenAddr, "address to listen on")
	root.Flags().String("data-dir", defaults.DataDir, "directory holding the data log")
	root.Flags().String("log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	root.Flags().String("log-format", defaults.LogFormat, "log format: text, json")
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "veris.toml", "path to config file")

	return root
}

func run(cfg config.Server) error {
	log, err := dblog.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	log = log.With(map[string]interface{}{"component": "verisd"})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(cfg.DataDir, dataFileName)
	b, err := storage.OpenFile(path, log)
	if err != nil {
		return fmt.Errorf("open data log: %w", err)
	}
	defer b.Close()

	e := engine.New(mvcc.New(b))
	srv := server.New(cfg.ListenAddr, e, log)

	return srv.Serve(context.Background())
}
