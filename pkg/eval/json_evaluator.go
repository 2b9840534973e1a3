package eval

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/open-feature/appflagd/pkg/model"
	"github.com/open-feature/appflagd/pkg/schema"
)

type IEvaluator interface {
	GetState() (string, error)
	SetState(state string) error
	SetTable(table model.FlagTable)
	Table() model.FlagTable

	ResolveAll(appID string) model.ResolvedFlags
	ResolveValue(flagKey string, appID string) (value model.Value, reason string, err error)
	ResolveBooleanValue(flagKey string, appID string) (value bool, reason string, err error)
	ResolveIntValue(flagKey string, appID string) (value int64, reason string, err error)
	ResolveFloatValue(flagKey string, appID string) (value float64, reason string, err error)
	ResolveStringValue(flagKey string, appID string) (value string, reason string, err error)
	ResolveBytesValue(flagKey string, appID string) (value []byte, reason string, err error)
}

// JSONEvaluator holds the current flag table and resolves flags against it.
// The table is swapped atomically, so resolution never blocks SetState and
// always sees one complete table. The zero value is ready to use.
type JSONEvaluator struct {
	state  atomic.Pointer[model.FlagTable]
	Logger *log.Entry
}

func NewJSONEvaluator(logger *log.Entry) *JSONEvaluator {
	return &JSONEvaluator{Logger: logger}
}

func (je *JSONEvaluator) logger() *log.Entry {
	if je.Logger == nil {
		return log.WithField("component", "evaluator")
	}
	return je.Logger
}

// Table returns a copy of the current flag table.
func (je *JSONEvaluator) Table() model.FlagTable {
	return je.current().Clone()
}

func (je *JSONEvaluator) current() model.FlagTable {
	if t := je.state.Load(); t != nil {
		return *t
	}
	return model.FlagTable{}
}

// SetTable installs table as the current state. The caller must not modify
// table afterwards.
func (je *JSONEvaluator) SetTable(table model.FlagTable) {
	if table == nil {
		table = model.FlagTable{}
	}
	je.state.Store(&table)
	je.logger().Debugf("flag table updated, %d flags", len(table))
}

func (je *JSONEvaluator) GetState() (string, error) {
	b, err := json.Marshal(model.Document{Flags: je.current()})
	if err != nil {
		return "", fmt.Errorf("unable to marshal flag table: %w", err)
	}
	return string(b), nil
}

// SetState validates a flag table document and installs it. On error the
// previous state is kept.
func (je *JSONEvaluator) SetState(state string) error {
	if err := schema.Validate([]byte(state)); err != nil {
		return err
	}
	var doc model.Document
	if err := json.Unmarshal([]byte(state), &doc); err != nil {
		return fmt.Errorf("unable to decode flag table: %w", err)
	}
	je.SetTable(doc.Flags)
	return nil
}

func (je *JSONEvaluator) ResolveAll(appID string) model.ResolvedFlags {
	return Resolve(je.current(), appID)
}

func (je *JSONEvaluator) ResolveValue(flagKey string, appID string) (model.Value, string, error) {
	def, ok := je.current()[flagKey]
	if !ok {
		return model.Value{}, model.ErrorReason, fmt.Errorf("%w: %s", model.ErrFlagNotFound, flagKey)
	}
	c, ok := firstMatch(def, appID)
	if !ok {
		return model.Value{}, model.ErrorReason,
			fmt.Errorf("%w: %s has no value for app %q", model.ErrFlagNotFound, flagKey, appID)
	}
	return c.Value, reason(c), nil
}

func resolveAs[T any](je *JSONEvaluator, flagKey, appID string, get func(model.Value) (T, error)) (T, string, error) {
	var zero T
	v, reason, err := je.ResolveValue(flagKey, appID)
	if err != nil {
		return zero, reason, err
	}
	out, err := get(v)
	if err != nil {
		je.logger().Debugf("flag %s: %v", flagKey, err)
		return zero, model.ErrorReason, err
	}
	return out, reason, nil
}

func (je *JSONEvaluator) ResolveBooleanValue(flagKey string, appID string) (bool, string, error) {
	return resolveAs(je, flagKey, appID, model.Value.GetBool)
}

func (je *JSONEvaluator) ResolveIntValue(flagKey string, appID string) (int64, string, error) {
	return resolveAs(je, flagKey, appID, model.Value.GetInt)
}

func (je *JSONEvaluator) ResolveFloatValue(flagKey string, appID string) (float64, string, error) {
	return resolveAs(je, flagKey, appID, model.Value.GetFloat)
}

func (je *JSONEvaluator) ResolveStringValue(flagKey string, appID string) (string, string, error) {
	return resolveAs(je, flagKey, appID, model.Value.GetString)
}

func (je *JSONEvaluator) ResolveBytesValue(flagKey string, appID string) ([]byte, string, error) {
	return resolveAs(je, flagKey, appID, model.Value.GetBytes)
}
