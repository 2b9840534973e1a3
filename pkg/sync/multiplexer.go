package sync

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/open-feature/appflagd/pkg/eval"
	"github.com/open-feature/appflagd/pkg/model"
)

// Payload carries the resolved flags of one app id, JSON encoded.
type Payload struct {
	AppID string `json:"appId"`
	Flags string `json:"flags"`
}

// Multiplexer fans out resolved flags to subscribers. Every subscriber is
// bound to an app id and receives the flags resolved for it each time a new
// table is published. Resolution is done once per distinct app id.
type Multiplexer struct {
	table model.FlagTable

	subs     map[string]map[string]chan Payload // app id -> subscription id -> channel
	resolved map[string]string                  // pre-calculated payloads per subscribed app id

	mu sync.RWMutex
}

func NewMux(table model.FlagTable) *Multiplexer {
	if table == nil {
		table = model.FlagTable{}
	}
	return &Multiplexer{
		table:    table,
		subs:     map[string]map[string]chan Payload{},
		resolved: map[string]string{},
	}
}

// Register subscribes to the flags of appID. The returned channel holds at
// most one pending payload; a slow subscriber only sees the latest one. The
// current payload is returned directly.
func (r *Multiplexer) Register(appID string) (string, <-chan Payload, Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flags, ok := r.resolved[appID]
	if !ok {
		var err error
		if flags, err = r.resolve(appID); err != nil {
			return "", nil, Payload{}, err
		}
		r.resolved[appID] = flags
	}

	id := uuid.NewString()
	ch := make(chan Payload, 1)
	if r.subs[appID] == nil {
		r.subs[appID] = map[string]chan Payload{}
	}
	r.subs[appID][id] = ch

	return id, ch, Payload{AppID: appID, Flags: flags}, nil
}

// Unregister removes a subscription and closes its channel.
func (r *Multiplexer) Unregister(id string, appID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.subs[appID][id]
	if !ok {
		return
	}
	delete(r.subs[appID], id)
	close(ch)
	if len(r.subs[appID]) == 0 {
		delete(r.subs, appID)
		delete(r.resolved, appID)
	}
}

// Publish installs a new table and pushes the re-resolved flags to every
// subscriber whose flags changed.
func (r *Multiplexer) Publish(table model.FlagTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.table = table
	for appID, subs := range r.subs {
		flags, err := r.resolve(appID)
		if err != nil {
			return err
		}
		if r.resolved[appID] == flags {
			continue
		}
		r.resolved[appID] = flags
		for _, ch := range subs {
			offer(ch, Payload{AppID: appID, Flags: flags})
		}
	}
	return nil
}

// GetAllFlags returns the resolved flags of appID as JSON.
func (r *Multiplexer) GetAllFlags(appID string) (string, error) {
	r.mu.RLock()
	flags, ok := r.resolved[appID]
	table := r.table
	r.mu.RUnlock()

	if ok {
		return flags, nil
	}
	return marshal(eval.Resolve(table, appID))
}

// Subscribers returns the number of subscriptions per app id.
func (r *Multiplexer) Subscribers() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.subs))
	for appID, subs := range r.subs {
		out[appID] = len(subs)
	}
	return out
}

func (r *Multiplexer) resolve(appID string) (string, error) {
	return marshal(eval.Resolve(r.table, appID))
}

func marshal(flags model.ResolvedFlags) (string, error) {
	b, err := json.Marshal(flags)
	if err != nil {
		return "", fmt.Errorf("unable to marshal resolved flags: %w", err)
	}
	return string(b), nil
}

// offer replaces any pending payload with p. Only the multiplexer sends on
// subscription channels, and always under its lock, so the final send cannot
// block.
func offer(ch chan Payload, p Payload) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- p
}
