package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracklet/goals-service/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrNoSnapshots = errors.New("no snapshots")

// execer and rowQuerier are satisfied by both *pgxpool.Pool and pgx.Tx,
// so appends and reads can run inside the goal update transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Append stores a snapshot of a metric's absolute value for a user on
// the given date. Appending twice for the same date overwrites the
// previously stored value.
func (r *Repo) Append(ctx context.Context, rec Record) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.ledger.append")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("metric", rec.Metric))
	span.SetAttributes(attribute.Int("user.id", rec.UserID))

	return appendTx(ctx, r.db, rec)
}

// AppendTx is Append running on an already open transaction.
func (r *Repo) AppendTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	return appendTx(ctx, tx, rec)
}

func appendTx(ctx context.Context, db execer, rec Record) error {
	if _, err := db.Exec(
		ctx,
		`INSERT INTO metric_history (metric, user_id, value, recorded_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (metric, user_id, recorded_at)
				DO UPDATE SET value = EXCLUDED.value;`,
		rec.Metric, rec.UserID, rec.Value, rec.RecordedAt,
	); err != nil {
		return fmt.Errorf("append metric history: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for the metric+user pair, or
// ErrNoSnapshots when the ledger is empty for that pair.
func (r *Repo) Latest(ctx context.Context, metric string, userID int) (_ *Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.ledger.latest")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return latestFrom(ctx, r.db, metric, userID)
}

// LatestTx is Latest running on an already open transaction, with the
// row locked for the remainder of the transaction.
func (r *Repo) LatestTx(ctx context.Context, tx pgx.Tx, metric string, userID int) (*Record, error) {
	return latestFrom(ctx, tx, metric, userID)
}

func latestFrom(ctx context.Context, db rowQuerier, metric string, userID int) (*Record, error) {
	rows, err := db.Query(
		ctx,
		`SELECT id, metric, user_id, value, recorded_at
			FROM metric_history
			WHERE metric = $1 AND user_id = $2
			ORDER BY recorded_at DESC
			LIMIT 1
			FOR UPDATE;`,
		metric, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrNoSnapshots
	}

	var rec Record
	if err := rows.Scan(&rec.ID, &rec.Metric, &rec.UserID, &rec.Value, &rec.RecordedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// History returns all snapshots for the metric+user pair, most recent
// first. An empty ledger yields an empty slice, not an error.
func (r *Repo) History(ctx context.Context, metric string, userID int) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.ledger.history")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("metric", metric))
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, metric, user_id, value, recorded_at
			FROM metric_history
			WHERE metric = $1 AND user_id = $2
			ORDER BY recorded_at DESC;`,
		metric, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Metric, &rec.UserID, &rec.Value, &rec.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, nil
}
