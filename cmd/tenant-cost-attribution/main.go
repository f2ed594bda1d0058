package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kube-reporting/tenant-cost-attribution/cmd/helpers"
)

const envPrefix = "TENANT_COST"

var (
	logLevelStr         string
	logFullTimestamp    bool
	logDisableTimestamp bool
	configFile          string

	logger log.FieldLogger = log.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:   "tenant-cost-attribution",
	Short: "attributes shared database instance costs to tenants",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		fs := cmd.Flags()
		if err := helpers.SetFlagsFromEnv(fs, envPrefix); err != nil {
			return err
		}
		if configFile != "" {
			if err := helpers.SetFlagsFromConfigFile(fs, configFile); err != nil {
				return err
			}
		}
		var err error
		logger, err = helpers.SetupLogger(logLevelStr, logFullTimestamp, logDisableTimestamp, log.Fields{
			"app": "tenant-cost-attribution",
		})
		return err
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

func init() {
	// globally set time to UTC
	time.Local = time.UTC

	rootCmd.PersistentFlags().StringVar(&logLevelStr, "log-level", log.InfoLevel.String(), "log level")
	rootCmd.PersistentFlags().BoolVar(&logFullTimestamp, "log-timestamp", true, "log full timestamp if true, otherwise log time since startup")
	rootCmd.PersistentFlags().BoolVar(&logDisableTimestamp, "disable-timestamp", false, "disable timestamp logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML or JSON file keyed by flag name, applied to flags not set on the command line or environment")

	rootCmd.AddCommand(deployCmd, computeCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("error executing command: %v", err)
	}
}

func setupSignals() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		logger.Infof("got signal %s, performing shutdown", sig)
		cancel()
	}()
	return ctx
}
