package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracklet/goals-service/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrMetricNotFound = errors.New("metric not found")

// defaultMetrics get seeded on startup so that a fresh deployment
// starts with a usable catalog. Seeding is idempotent.
var defaultMetrics = []Metric{
	{Name: "distance", Unit: "km"},
	{Name: "muscle", Unit: "kg"},
	{Name: "fat", Unit: "kg"},
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Seed(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.catalog.seed")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	for _, m := range defaultMetrics {
		if _, err := r.db.Exec(
			ctx,
			`INSERT INTO metric (name, unit) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING;`,
			m.Name, m.Unit,
		); err != nil {
			return fmt.Errorf("seed metric %s: %w", m.Name, err)
		}
	}

	log.Debugf("metric catalog seeded, %d metrics", len(defaultMetrics))
	return nil
}

func (r *Repo) List(ctx context.Context) (_ []Metric, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.catalog.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT name, unit FROM metric ORDER BY name;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var metrics []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.Name, &m.Unit); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}

	span.SetAttributes(attribute.Int("metrics.count", len(metrics)))
	return metrics, nil
}

// Get returns the metric with the given name, or ErrMetricNotFound.
func (r *Repo) Get(ctx context.Context, name string) (_ *Metric, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.catalog.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("metric.name", name))

	rows, err := r.db.Query(
		ctx,
		`SELECT name, unit FROM metric WHERE name = $1;`,
		name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrMetricNotFound
	}

	var m Metric
	if err := rows.Scan(&m.Name, &m.Unit); err != nil {
		return nil, err
	}
	return &m, nil
}
