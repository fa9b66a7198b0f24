package main

import (
	"fmt"
	"os"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osbuild/osbuild-bootdisk/internal/common"
)

var (
	configPath string
	config     *BootdiskConfigFile
)

var rootCmd = &cobra.Command{
	Use:           "osbuild-bootdisk",
	Short:         "Generate and serve iPXE boot disks for provisioned hosts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = LoadConfig(configPath)
		if os.IsNotExist(err) && !cmd.Flags().Changed("config") {
			logrus.Debugf("Configuration file %s not found, using defaults", configPath)
			config = GetDefaultConfig()
			err = loadConfigFromEnv(config)
		}
		if err != nil {
			return fmt.Errorf("error loading configuration: %v", err)
		}
		return setupLogging(config)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(common.Version())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		masked := *config
		if masked.Inventory.PGPassword != "" {
			masked.Inventory.PGPassword = "***"
		}
		if masked.Sentry.DSN != "" {
			masked.Sentry.DSN = "***"
		}
		return DumpConfig(&masked, cmd.OutOrStdout())
	},
}

func setupLogging(c *BootdiskConfigFile) error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.AddHook(&common.BuildHook{})
	if c.Channel != "" {
		logrus.AddHook(&common.EnvironmentHook{Channel: c.Channel})
	}
	if c.LogJournal {
		if !journal.Enabled() {
			return fmt.Errorf("journal logging requested but journald is not available")
		}
		logrus.AddHook(&common.JournalHook{Identifier: "osbuild-bootdisk"})
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "path to the configuration file")
	rootCmd.AddCommand(serveCmd, generateCmd, inspectCmd, hostsCmd, versionCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
