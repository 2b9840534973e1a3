package service

import (
	"context"

	"github.com/open-feature/appflagd/pkg/eval"
	"github.com/open-feature/appflagd/pkg/sync"
)

type IService interface {
	// Serve blocks until ctx is cancelled or the service fails.
	Serve(ctx context.Context, eval eval.IEvaluator, mux *sync.Multiplexer) error
}
