package runtime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/open-feature/appflagd/pkg/eval"
	"github.com/open-feature/appflagd/pkg/provider"
	"github.com/open-feature/appflagd/pkg/service"
	"github.com/open-feature/appflagd/pkg/store"
	"github.com/open-feature/appflagd/pkg/sync"
)

const postgresScheme = "postgres://"

type Config struct {
	ServiceProvider string
	ServicePort     int32
	// URIs lists the flag sources in priority order, lowest first. Entries are
	// file paths (optionally prefixed with file:) or postgres:// DSNs.
	URIs           []string
	ResyncSchedule string
	NotifyChannel  string
	Backoff        time.Duration
}

func FromConfig(logger *log.Entry, config Config) (*Runtime, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if len(config.URIs) == 0 {
		return nil, errors.New("no flag source uri set")
	}

	svc, err := findService(logger, config)
	if err != nil {
		return nil, err
	}

	providers := make([]provider.IProvider, 0, len(config.URIs))
	sources := make([]string, 0, len(config.URIs))
	for _, uri := range config.URIs {
		p, err := findProvider(logger, uri, config)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
		sources = append(sources, p.Source())
	}

	return &Runtime{
		Service:   svc,
		Providers: providers,
		Evaluator: eval.NewJSONEvaluator(logger.WithField("component", "evaluator")),
		Store:     store.NewFlags(logger.WithField("component", "store"), sources...),
		Mux:       sync.NewMux(nil),
		Logger:    logger.WithField("component", "runtime"),
	}, nil
}

func findService(logger *log.Entry, config Config) (service.IService, error) {
	switch config.ServiceProvider {
	case "", "http":
		logger.Debugf("using http service-provider on port %d", config.ServicePort)
		return &service.HTTPService{
			HTTPServiceConfiguration: &service.HTTPServiceConfiguration{Port: config.ServicePort},
			Logger:                   logger.WithField("component", "service"),
		}, nil
	}
	return nil, fmt.Errorf("unknown service-provider %q", config.ServiceProvider)
}

func findProvider(logger *log.Entry, uri string, config Config) (provider.IProvider, error) {
	switch {
	case strings.HasPrefix(uri, postgresScheme), strings.HasPrefix(uri, "postgresql://"):
		p := &provider.PostgresProvider{
			DSN:            uri,
			Channel:        config.NotifyChannel,
			ResyncSchedule: config.ResyncSchedule,
			Backoff:        config.Backoff,
		}
		p.Logger = logger.WithFields(log.Fields{"component": "provider", "source": p.Source()})
		logger.Debug("using postgres sync-provider")
		return p, nil
	case uri == "", uri == "file:":
		return nil, errors.New("empty flag source uri")
	default:
		p := &provider.FilePathProvider{
			URI:            strings.TrimPrefix(uri, "file:"),
			ResyncSchedule: config.ResyncSchedule,
		}
		p.Logger = logger.WithFields(log.Fields{"component": "provider", "source": p.Source()})
		logger.Debugf("using filepath sync-provider for %s", p.URI)
		return p, nil
	}
}
