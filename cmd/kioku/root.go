package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kioku/internal/config"
)

const (
	defaultConfigPath = "/usr/local/etc/kioku/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// NewRootCmd creates the root kioku command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kioku",
		Short:         "kioku - semantic cache for LLM responses",
		Long:          "kioku answers repeated or near-duplicate prompts from a vector cache and only calls the model on a miss.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(),
		newQueryCmd(),
		newStatusCmd(),
		newFlushCmd(),
		newReconcileCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so that "kioku server" from a project dir uses the
// project's config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func loadConfigFromFlags(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		return nil, "", err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	return cfg, resolved, nil
}
