// Package cmd is the thinkhire command line.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thinkhire/interview-pipeline/config"
)

const app = "thinkhire"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "thinkhire runs mock interviews and practice sessions against the analysis backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logrus.WithError(err).Error(app + " failed")
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is thinkhire.yaml or config/$CONFIG_ENV/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// setup loads the dotenv files and the config and builds the logger every
// command uses.
func setup() (*config.Root, *logrus.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}
	conf, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(viper.GetBool("json"), viper.GetBool("debug"), conf.Pipeline.LogLvl)
	log.WithField("name", conf.Pipeline.Name).Debug("config loaded")
	return conf, log, nil
}

func newLogger(json, debug bool, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if debug {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	return log
}
