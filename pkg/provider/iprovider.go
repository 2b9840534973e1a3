package provider

import (
	"context"

	"github.com/open-feature/appflagd/pkg/model"
)

// DataSync is a complete flag table read from one source.
type DataSync struct {
	Source string
	Table  model.FlagTable
}

type IProvider interface {
	// Source names the provider; flags from later sources override earlier ones.
	Source() string
	// Sync sends the source's table on dataSync once it has been read and again
	// on every change, until ctx is cancelled. It returns an error only when the
	// source cannot be read at startup.
	Sync(ctx context.Context, dataSync chan<- DataSync) error
}
