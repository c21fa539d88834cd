package main

import (
	"fmt"
	"os"

	gconfig "PPClient/global/config"
	"PPClient/logger"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "ppclient",
		Short:         "PP chat realtime client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "override log_level")

	root.AddCommand(newRunCmd(f))
	root.AddCommand(newIdentityCmd(f))
	root.AddCommand(newNotificationsCmd(f))
	return root
}

// loadConfig reads the config file and applies the process log level.
func loadConfig(f *rootFlags) (*gconfig.Config, error) {
	cfg, err := gconfig.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}
