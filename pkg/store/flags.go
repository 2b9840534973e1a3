package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/hashicorp/go-memdb"
	log "github.com/sirupsen/logrus"

	"github.com/open-feature/appflagd/pkg/model"
)

const flagsTable = "flags"

type NotificationType string

const (
	NotificationCreate NotificationType = "write"
	NotificationUpdate NotificationType = "update"
	NotificationDelete NotificationType = "delete"
)

type Notification struct {
	Type   NotificationType `json:"type"`
	Source string           `json:"source"`
}

// Flag is a flag definition as delivered by one source.
type Flag struct {
	Key        string
	Source     string
	Definition model.FlagDefinition
}

// State keeps the flag definitions of every source. A flag defined by more
// than one source takes the definition of the source listed last in
// FlagSources.
type State struct {
	mx          sync.RWMutex
	FlagSources []string
	db          *memdb.MemDB
	logger      *log.Entry
}

func (s *State) hasPriority(stored string, new string) bool {
	if stored == new {
		return true
	}
	for i := len(s.FlagSources) - 1; i >= 0; i-- {
		switch s.FlagSources[i] {
		case stored:
			return false
		case new:
			return true
		}
	}
	return true
}

func NewFlags(logger *log.Entry, sources ...string) *State {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			flagsTable: {
				Name: flagsTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Key"},
								&memdb.StringFieldIndex{Field: "Source"},
							},
						},
					},
					"key": {
						Name:    "key",
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"source": {
						Name:    "source",
						Indexer: &memdb.StringFieldIndex{Field: "Source"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		// the schema is static, this only fails on a programming error
		panic(err)
	}

	if logger == nil {
		logger = log.WithField("component", "store")
	}

	return &State{
		FlagSources: append([]string(nil), sources...),
		db:          db,
		logger:      logger,
	}
}

func (s *State) registerSource(source string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, known := range s.FlagSources {
		if known == source {
			return
		}
	}
	s.FlagSources = append(s.FlagSources, source)
}

// Update replaces every flag of source with flags. It returns a notification
// per flag that was created, changed or removed, and whether any flag was
// removed.
func (s *State) Update(source string, flags model.FlagTable) (map[string]Notification, bool) {
	s.registerSource(source)

	notifications := map[string]Notification{}
	resyncRequired := false

	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(flagsTable, "source", source)
	if err != nil {
		panic(err)
	}
	stored := map[string]Flag{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		f := obj.(Flag)
		stored[f.Key] = f
	}

	for k, f := range stored {
		if _, ok := flags[k]; ok {
			continue
		}
		if err := txn.Delete(flagsTable, f); err != nil {
			panic(err)
		}
		notifications[k] = Notification{Type: NotificationDelete, Source: source}
		resyncRequired = true
		s.logger.Debugf("flag %s has been deleted from source %s", k, source)
	}

	for k, def := range flags {
		if k == "" {
			s.logger.Warnf("ignoring flag with an empty name from source %s", source)
			continue
		}
		newFlag := Flag{Key: k, Source: source, Definition: def}
		old, ok := stored[k]
		if ok && reflect.DeepEqual(old.Definition, newFlag.Definition) {
			continue
		}
		if err := txn.Insert(flagsTable, newFlag); err != nil {
			panic(err)
		}
		if ok {
			notifications[k] = Notification{Type: NotificationUpdate, Source: source}
		} else {
			notifications[k] = Notification{Type: NotificationCreate, Source: source}
		}
	}

	txn.Commit()
	s.logger.Debugf("source %s updated, %d changes", source, len(notifications))
	return notifications, resyncRequired
}

// Get returns the winning definition of a flag and the source it came from.
func (s *State) Get(key string) (model.FlagDefinition, string, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(flagsTable, "key", key)
	if err != nil {
		panic(err)
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	var (
		winner Flag
		found  bool
	)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		f := obj.(Flag)
		if !found || s.hasPriority(winner.Source, f.Source) {
			winner, found = f, true
		}
	}
	return winner.Definition, winner.Source, found
}

// Table merges the definitions of all sources into one flag table.
func (s *State) Table() model.FlagTable {
	table, _ := s.table()
	return table
}

// Watch returns the merged table together with a channel that is closed on
// the next change to the store.
func (s *State) Watch() (model.FlagTable, <-chan struct{}) {
	return s.table()
}

func (s *State) table() (model.FlagTable, <-chan struct{}) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(flagsTable, "id")
	if err != nil {
		panic(err)
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	winners := map[string]Flag{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		f := obj.(Flag)
		if w, ok := winners[f.Key]; !ok || s.hasPriority(w.Source, f.Source) {
			winners[f.Key] = f
		}
	}

	table := make(model.FlagTable, len(winners))
	for k, f := range winners {
		table[k] = f.Definition
	}
	return table, it.WatchCh()
}

// Sources returns the number of flags held per source.
func (s *State) Sources() map[string]int {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(flagsTable, "id")
	if err != nil {
		panic(err)
	}
	out := map[string]int{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out[obj.(Flag).Source]++
	}
	return out
}

func (s *State) String() (string, error) {
	bytes, err := json.Marshal(model.Document{Flags: s.Table()})
	if err != nil {
		return "", fmt.Errorf("unable to marshal flags: %w", err)
	}
	return string(bytes), nil
}
