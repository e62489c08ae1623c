package goals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tracklet/goals-service/internal/ledger"
	"github.com/tracklet/goals-service/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrGoalNotFound = errors.New("goal not found")

// historyLedger is what the repo needs from the metric ledger to stamp
// snapshots inside the goal update transaction.
type historyLedger interface {
	AppendTx(ctx context.Context, tx pgx.Tx, rec ledger.Record) error
	LatestTx(ctx context.Context, tx pgx.Tx, metric string, userID int) (*ledger.Record, error)
}

type Repo struct {
	db     *pgxpool.Pool
	ledger historyLedger
}

func NewRepo(db *pgxpool.Pool, ledger historyLedger) *Repo {
	return &Repo{
		db:     db,
		ledger: ledger,
	}
}

func (r *Repo) Add(ctx context.Context, goal Goal) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", goal.UserID))

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO goal
				(user_id, title, description, metric, objective, time_limit, progress)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id;`,
		goal.UserID, goal.Title, goal.Description, goal.Metric, goal.Objective, goal.TimeLimit, goal.Progress,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("goal.id", id))

	goal.ID = id
	return &goal, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("goal.id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, title, description, metric, objective, time_limit, progress
			FROM goal WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrGoalNotFound
	}

	var goal Goal
	if err := rows.Scan(
		&goal.ID, &goal.UserID, &goal.Title, &goal.Description,
		&goal.Metric, &goal.Objective, &goal.TimeLimit, &goal.Progress,
	); err != nil {
		return nil, err
	}
	return &goal, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID int) (_ []Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.listByUser")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, title, description, metric, objective, time_limit, progress
			FROM goal
			WHERE user_id = $1
			ORDER BY id;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var userGoals []Goal
	for rows.Next() {
		var goal Goal
		if err := rows.Scan(
			&goal.ID, &goal.UserID, &goal.Title, &goal.Description,
			&goal.Metric, &goal.Objective, &goal.TimeLimit, &goal.Progress,
		); err != nil {
			return nil, err
		}
		userGoals = append(userGoals, goal)
	}

	span.SetAttributes(attribute.Int("goals.count", len(userGoals)))
	return userGoals, nil
}

// Update applies a partial update to a goal and, when the update moves
// the progress value, appends the resulting metric snapshot to the
// ledger. The whole read-compute-write sequence runs in one transaction
// with the goal row locked, concurrent updates to the same goal
// serialize instead of racing.
//
// The authorize callback runs after the goal is loaded but before
// anything is written; returning an error aborts the transaction.
func (r *Repo) Update(
	ctx context.Context,
	id int,
	update Update,
	stampedAt time.Time,
	authorize func(goal *Goal) error,
) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("goal.id", id))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				log.Errorf("update goal %d: rollback: %s", id, rollbackErr)
			}
		}
	}()

	goal, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := authorize(goal); err != nil {
		return nil, err
	}

	// progress delta against the value the goal had before this update
	var progressDelta int
	progressChanged := update.Progress != nil
	if progressChanged {
		progressDelta = *update.Progress - goal.Progress
	}

	applyPartialUpdate(goal, update)

	if _, err := tx.Exec(
		ctx,
		`UPDATE goal
			SET title = $1, description = $2, objective = $3, time_limit = $4, progress = $5
			WHERE id = $6;`,
		goal.Title, goal.Description, goal.Objective, goal.TimeLimit, goal.Progress, goal.ID,
	); err != nil {
		return nil, fmt.Errorf("update goal row: %w", err)
	}

	if progressChanged {
		newValue, err := nextSnapshotValue(ctx, tx, r.ledger, goal, progressDelta)
		if err != nil {
			return nil, err
		}
		if err := r.ledger.AppendTx(ctx, tx, ledger.Record{
			Metric:     goal.Metric,
			UserID:     goal.UserID,
			Value:      newValue,
			RecordedAt: stampedAt,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return goal, nil
}

func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("goal.id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM goal WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}
	return nil
}

func getForUpdate(ctx context.Context, tx pgx.Tx, id int) (*Goal, error) {
	rows, err := tx.Query(
		ctx,
		`SELECT id, user_id, title, description, metric, objective, time_limit, progress
			FROM goal WHERE id = $1 FOR UPDATE;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrGoalNotFound
	}

	var goal Goal
	if err := rows.Scan(
		&goal.ID, &goal.UserID, &goal.Title, &goal.Description,
		&goal.Metric, &goal.Objective, &goal.TimeLimit, &goal.Progress,
	); err != nil {
		return nil, err
	}
	return &goal, nil
}

func applyPartialUpdate(goal *Goal, update Update) {
	if update.Title != nil {
		goal.Title = *update.Title
	}
	if update.Description != nil {
		goal.Description = *update.Description
	}
	if update.Objective != nil {
		goal.Objective = *update.Objective
	}
	if update.TimeLimit != nil {
		goal.TimeLimit = *update.TimeLimit
	}
	if update.Progress != nil {
		goal.Progress = *update.Progress
	}
}

// nextSnapshotValue translates a goal progress delta into the next
// absolute ledger value: latest snapshot plus delta, or the goal's own
// progress when the ledger has nothing for this metric+user yet.
func nextSnapshotValue(
	ctx context.Context,
	tx pgx.Tx,
	hl historyLedger,
	goal *Goal,
	progressDelta int,
) (int, error) {
	latest, err := hl.LatestTx(ctx, tx, goal.Metric, goal.UserID)
	switch {
	case err == nil:
		return latest.Value + progressDelta, nil
	case errors.Is(err, ledger.ErrNoSnapshots):
		return goal.Progress, nil
	default:
		return 0, err
	}
}
