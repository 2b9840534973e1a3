package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open-feature/appflagd/pkg/runtime"
)

const (
	portFlag            = "port"
	serviceProviderFlag = "service-provider"
	uriFlag             = "uri"
	resyncScheduleFlag  = "resync-schedule"
	notifyChannelFlag   = "notify-channel"
	listenBackoffFlag   = "listen-backoff"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start appflagd",
	Long: `Start appflagd and serve resolved flags over HTTP.

Flag sources are read in the order given with --uri; a flag defined in more
than one source takes the definition of the last one. A source is a JSON or
YAML file path or a postgres:// connection string.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.WithField("version", Version)

		rt, err := runtime.FromConfig(logger, runtime.Config{
			ServiceProvider: viper.GetString(serviceProviderFlag),
			ServicePort:     viper.GetInt32(portFlag),
			URIs:            viper.GetStringSlice(uriFlag),
			ResyncSchedule:  viper.GetString(resyncScheduleFlag),
			NotifyChannel:   viper.GetString(notifyChannelFlag),
			Backoff:         viper.GetDuration(listenBackoffFlag),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("starting appflagd")
		if err := rt.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("appflagd stopped: %v", err)
			return err
		}
		logger.Info("appflagd stopped")
		return nil
	},
}

func init() {
	flags := startCmd.Flags()
	flags.Int32P(portFlag, "p", 8013, "Port to listen on")
	flags.StringP(serviceProviderFlag, "s", "http", "Set a service provider, only http is supported")
	flags.StringSliceP(uriFlag, "f", nil, "Flag sources, file paths or postgres:// DSNs, lowest priority first")
	flags.String(resyncScheduleFlag, "", "cron schedule for a full resync of every source, e.g. \"@every 5m\"")
	flags.String(notifyChannelFlag, "", "postgres LISTEN channel announcing flag changes")
	flags.Duration(listenBackoffFlag, 5*time.Second, "base delay before reconnecting to postgres")

	for _, name := range []string{portFlag, serviceProviderFlag, uriFlag, resyncScheduleFlag, notifyChannelFlag, listenBackoffFlag} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(startCmd)
}
