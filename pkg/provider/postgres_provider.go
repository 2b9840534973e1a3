package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/open-feature/appflagd/pkg/model"
)

const (
	DefaultNotifyChannel = "appflagd_flags_changed"
	defaultQueryTimeout  = 5 * time.Second
)

const selectCandidates = `
SELECT flag_key, app_id, bool_value, int_value, float_value, string_value, bytes_value
FROM flag_candidates
ORDER BY flag_key, position`

// PostgresProvider reads the flag table from the flag_candidates table and
// reloads it on LISTEN notifications and on the resync schedule.
type PostgresProvider struct {
	DSN            string
	Channel        string
	ResyncSchedule string
	Backoff        time.Duration
	Logger         *log.Entry

	pool *pgxpool.Pool
}

// candidateRow is one row of flag_candidates. NULL columns stay nil.
type candidateRow struct {
	FlagKey     string
	AppID       *string
	BoolValue   *bool
	IntValue    *int64
	FloatValue  *float64
	StringValue *string
	BytesValue  []byte
}

// Source names the database without credentials.
func (pp *PostgresProvider) Source() string {
	if pp.DSN == "" {
		return "postgres"
	}
	cfg, err := pgx.ParseConfig(pp.DSN)
	if err != nil {
		return "postgres"
	}
	return fmt.Sprintf("postgres:%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
}

func (pp *PostgresProvider) logger() *log.Entry {
	if pp.Logger == nil {
		return log.WithFields(log.Fields{"component": "provider", "source": pp.Source()})
	}
	return pp.Logger
}

func (pp *PostgresProvider) channel() string {
	if pp.Channel == "" {
		return DefaultNotifyChannel
	}
	return pp.Channel
}

func (pp *PostgresProvider) Sync(ctx context.Context, dataSync chan<- DataSync) error {
	if pp.DSN == "" {
		return errors.New("no postgres dsn set")
	}
	pool, err := pgxpool.New(ctx, pp.DSN)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	pp.pool = pool
	defer pool.Close()

	table, err := pp.load(ctx)
	if err != nil {
		return err
	}

	reload := make(chan struct{}, 1)
	stop, err := startResync(pp.ResyncSchedule, reload)
	if err != nil {
		return err
	}
	defer stop()

	go pp.listen(ctx, reload)

	for {
		select {
		case dataSync <- DataSync{Source: pp.Source(), Table: table}:
		case <-ctx.Done():
			return nil
		}

		select {
		case <-reload:
		case <-ctx.Done():
			return nil
		}

		next, err := pp.load(ctx)
		for err != nil {
			pp.logger().Errorf("unable to reload flag table: %v", err)
			select {
			case <-time.After(jitter(pp.Backoff)):
			case <-ctx.Done():
				return nil
			}
			next, err = pp.load(ctx)
		}
		table = next
	}
}

func (pp *PostgresProvider) load(ctx context.Context) (model.FlagTable, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	rows, err := pp.pool.Query(ctx, selectCandidates)
	if err != nil {
		return nil, fmt.Errorf("query flag candidates: %w", err)
	}
	defer rows.Close()

	var out []candidateRow
	for rows.Next() {
		var r candidateRow
		if err := rows.Scan(&r.FlagKey, &r.AppID, &r.BoolValue, &r.IntValue,
			&r.FloatValue, &r.StringValue, &r.BytesValue); err != nil {
			return nil, fmt.Errorf("scan flag candidate: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read flag candidates: %w", err)
	}
	return rowsToTable(out), nil
}

// rowsToTable builds a flag table from rows already ordered by flag key and
// position. A row with every payload column NULL becomes an empty candidate.
func rowsToTable(rows []candidateRow) model.FlagTable {
	table := model.FlagTable{}
	for _, r := range rows {
		c := model.ConstrainedValue{}
		if r.AppID != nil {
			c.AppID = *r.AppID
		}
		switch {
		case r.BoolValue != nil:
			c.Value = model.BoolValue(*r.BoolValue)
		case r.IntValue != nil:
			c.Value = model.IntValue(*r.IntValue)
		case r.FloatValue != nil:
			c.Value = model.FloatValue(*r.FloatValue)
		case r.StringValue != nil:
			c.Value = model.StringValue(*r.StringValue)
		case r.BytesValue != nil:
			c.Value = model.BytesValue(r.BytesValue)
		}
		table[r.FlagKey] = append(table[r.FlagKey], c)
	}
	return table
}

func (pp *PostgresProvider) listen(ctx context.Context, reload chan<- struct{}) {
	for ctx.Err() == nil {
		err := pp.waitForChanges(ctx, reload)
		if ctx.Err() != nil {
			return
		}
		backoff := jitter(pp.Backoff)
		pp.logger().Errorf("listen on %s failed, retrying in %s: %v", pp.channel(), backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
	}
}

func (pp *PostgresProvider) waitForChanges(ctx context.Context, reload chan<- struct{}) error {
	conn, err := pp.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn for listen: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{pp.channel()}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	pp.logger().Infof("listening for flag changes on %s", pp.channel())

	// a reload right after (re)connecting covers changes missed while away
	notify(reload)
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		pp.logger().Debugf("notification on %s: %s", n.Channel, n.Payload)
		notify(reload)
	}
}

func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(base) * factor)
}
