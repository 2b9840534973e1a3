package eval

import "github.com/open-feature/appflagd/pkg/model"

// Resolve computes the effective value of every flag in table for appID.
//
// For each flag the first candidate, in declared order, that carries a
// payload and whose app id filter is empty or equal to appID wins. Flags
// without such a candidate are left out of the result. table is not modified
// and may be shared between concurrent callers.
func Resolve(table model.FlagTable, appID string) model.ResolvedFlags {
	values := make(map[string]model.Value, len(table))
	for key, def := range table {
		if c, ok := firstMatch(def, appID); ok {
			values[key] = c.Value
		}
	}
	return model.NewResolvedFlags(values)
}

func firstMatch(def model.FlagDefinition, appID string) (model.ConstrainedValue, bool) {
	for _, c := range def {
		if c.Matches(appID) {
			return c, true
		}
	}
	return model.ConstrainedValue{}, false
}

// reason reports TARGETING_MATCH when the winning candidate was scoped to an
// app id and STATIC when it applies to every app.
func reason(c model.ConstrainedValue) string {
	if c.AppID != "" {
		return model.TargetingMatchReason
	}
	return model.StaticReason
}
