package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string // YAML session config file
	logLevel string // log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "simlink",
	Short: "Session driver for simulators attached to a remote brain service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML session config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
}

// newViper builds the config resolver: explicit flags win over SIMLINK_*
// environment variables, which win over the config file.
func newViper(cmd *cobra.Command, flagKeys ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("SIMLINK")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	for _, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
