package main

import (
	"fmt"
	"os"
	"sort"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	appName    = "tracilink"
	appVersion = "0.3.0"
)

var (
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel string

	log = logrus.WithField("module", appName)
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Bridge between a co-simulation orchestrator and SUMO",
	Long: `tracilink drives a SUMO simulation over TraCI or in-process libsumo:
  - subscribes vehicles, persons, detectors and traffic lights
  - advances the simulation step by step and decodes the batched results
  - publishes the results as JSON over MQTT and accepts taxi dispatch requests`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logrus.SetFormatter(&easy.Formatter{
			TimestampFormat: "2006-01-02 15:04:05.0000",
			LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
		})
		level, ok := logLevels[logLevel]
		if !ok {
			names := lo.Keys(logLevels)
			sort.Strings(names)
			return fmt.Errorf("log.level must be one of %v", names)
		}
		logrus.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log.level", "info", "log level (trace debug info warn error critical off)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("Exiting")
		os.Exit(1)
	}
}
