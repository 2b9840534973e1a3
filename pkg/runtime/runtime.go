package runtime

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/open-feature/appflagd/pkg/eval"
	"github.com/open-feature/appflagd/pkg/provider"
	"github.com/open-feature/appflagd/pkg/service"
	"github.com/open-feature/appflagd/pkg/store"
	"github.com/open-feature/appflagd/pkg/sync"
)

type Runtime struct {
	Service   service.IService
	Providers []provider.IProvider
	Evaluator eval.IEvaluator
	Store     *store.State
	Mux       *sync.Multiplexer
	Logger    *log.Entry
}

// Start runs every provider and the service until ctx is cancelled or one of
// them fails.
func (r *Runtime) Start(ctx context.Context) error {
	if r.Service == nil || r.Evaluator == nil || r.Store == nil || r.Mux == nil {
		return errors.New("runtime is not fully configured")
	}
	if r.Logger == nil {
		r.Logger = log.WithField("component", "runtime")
	}

	g, gCtx := errgroup.WithContext(ctx)
	dataSync := make(chan provider.DataSync, len(r.Providers))

	for _, p := range r.Providers {
		p := p
		g.Go(func() error {
			r.Logger.Infof("starting sync from %s", p.Source())
			return p.Sync(gCtx, dataSync)
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case ds := <-dataSync:
				if err := r.updateWithNotify(ds); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		return r.Service.Serve(gCtx, r.Evaluator, r.Mux)
	})

	return g.Wait()
}

func (r *Runtime) updateWithNotify(ds provider.DataSync) error {
	notifications, resync := r.Store.Update(ds.Source, ds.Table)
	if len(notifications) == 0 {
		r.Logger.Debugf("no flag changes from %s", ds.Source)
		return nil
	}

	table := r.Store.Table()
	r.Evaluator.SetTable(table)
	if err := r.Mux.Publish(table); err != nil {
		return err
	}

	for key, n := range notifications {
		r.Logger.Debugf("flag %s: %s from %s", key, n.Type, n.Source)
	}
	if resync {
		r.Logger.Infof("flags removed from %s", ds.Source)
	}
	r.Logger.Infof("%d flags changed from %s, %d flags total", len(notifications), ds.Source, len(table))
	return nil
}
