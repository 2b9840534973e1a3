package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "APPFLAGD"
	logLevelFlag   = "log-level"
	logFormatFlag  = "log-format"
	configFileFlag = "config"
)

var (
	cfgFile string
	Version string
	Commit  string
	Date    string
)

var rootCmd = &cobra.Command{
	Use:   "appflagd",
	Short: "Per-application flag resolution daemon",
	Long: `appflagd serves flag tables in which every flag is an ordered list of
candidate values, each optionally restricted to one application id. For a given
application the first matching candidate of each flag wins.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(viper.GetString(logLevelFlag), viper.GetString(logFormatFlag))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(version string, commit string, date string) {
	Version = version
	Commit = commit
	Date = date
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, configFileFlag, "", "config file (default is $HOME/.appflagd.yaml)")
	rootCmd.PersistentFlags().String(logLevelFlag, "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String(logFormatFlag, "text", "log format: text or json")

	_ = viper.BindPFlag(logLevelFlag, rootCmd.PersistentFlags().Lookup(logLevelFlag))
	_ = viper.BindPFlag(logFormatFlag, rootCmd.PersistentFlags().Lookup(logFormatFlag))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".appflagd")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		log.Fatalf("unable to read config file %s: %v", cfgFile, err)
	}
}

func setupLogging(level string, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	log.SetOutput(os.Stderr)
	return nil
}
