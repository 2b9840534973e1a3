package provider

import (
	"fmt"

	"github.com/robfig/cron"
)

// startResync fires trigger on schedule. An empty schedule disables resyncs.
// The returned stop function is always safe to call.
func startResync(schedule string, trigger chan<- struct{}) (func(), error) {
	if schedule == "" {
		return func() {}, nil
	}
	c := cron.New()
	err := c.AddFunc(schedule, func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid resync schedule %q: %w", schedule, err)
	}
	c.Start()
	return c.Stop, nil
}
