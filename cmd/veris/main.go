// Command veris is the interactive SQL client for a veris server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clstatham/veris/client"
	"github.com/clstatham/veris/internal/config"
	"github.com/clstatham/veris/internal/dblog"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	defaults := config.DefaultClient()

	root := &cobra.Command{
		Use:   "veris",
		Short: "Connect to a veris database server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	root.Flags().String("server-addr", defaults.ServerAddr, "address of the server to connect to")
	root.Flags().String("history-path", defaults.HistoryPath, "path to the REPL history file")
	root.Flags().Duration("connect-timeout", defaults.ConnectTimeout, "timeout for a single connection attempt")
	root.Flags().Int("max-reconnect-attempts", defaults.MaxReconnectAttempts, "maximum number of reconnect attempts before giving up (0 = unlimited)")
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "veris-cli.toml", "path to config file")

	return root
}

func run(cfg config.Client) error {
	log, err := dblog.New(os.Stderr, "warn", "text")
	if err != nil {
		return err
	}

	c := client.New(client.Config{
		Addr:                 cfg.ServerAddr,
		HistoryPath:          cfg.HistoryPath,
		ConnectTimeout:       cfg.ConnectTimeout,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, log, os.Stdout)

	return c.Loop()
}
