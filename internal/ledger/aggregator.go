package ledger

import (
	"context"
	"time"

	"github.com/tracklet/goals-service/internal/catalog"
	"github.com/tracklet/goals-service/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

//go:generate mockgen -source=$GOFILE -destination=aggregator_mocks_test.go -package=ledger_test

type metricsCatalog interface {
	Get(ctx context.Context, name string) (*catalog.Metric, error)
}

type metricHistory interface {
	History(ctx context.Context, metric string, userID int) ([]Record, error)
}

// Aggregator answers "how much did metric M change for user U within
// the last D days" by scanning the snapshot ledger newest-first.
type Aggregator struct {
	catalog metricsCatalog
	history metricHistory

	// now is injected so tests can pin the window boundary
	now func() time.Time
}

func NewAggregator(catalog metricsCatalog, history metricHistory, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		catalog: catalog,
		history: history,
		now:     now,
	}
}

// ProgressWithin computes the net change of a metric's value for a user
// within the last `days` days.
//
// The ledger holds absolute values, newest first. The first record not
// older than `days` (boundary inclusive) is the latest in-window value;
// the first record strictly older is the baseline just outside the
// window. When no baseline exists, the latest absolute value itself is
// returned. When nothing falls inside the window, the result is 0.
//
// An unknown metric yields catalog.ErrMetricNotFound; a known metric
// with an empty ledger yields 0.
func (a *Aggregator) ProgressWithin(
	ctx context.Context,
	metric string,
	userID int,
	days int,
) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "aggregator.progressWithin")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("metric", metric))
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("window.days", days))

	if _, err := a.catalog.Get(ctx, metric); err != nil {
		return 0, err
	}

	records, err := a.history.History(ctx, metric, userID)
	if err != nil {
		return 0, err
	}

	today := dayOf(a.now())

	// explicit "set" marker: a legitimate snapshot value of 0 must not
	// be confused with "no in-window snapshot seen yet"
	var latestValue, oldestValue int
	var latestSet bool
	for _, rec := range records {
		ageDays := int(today.Sub(dayOf(rec.RecordedAt)).Hours() / 24)
		if ageDays <= days {
			if !latestSet {
				latestValue = rec.Value
				latestSet = true
			}
			continue
		}
		// first record older than the window is the baseline; records
		// are newest-first, so everything further back is older still
		oldestValue = rec.Value
		break
	}

	if !latestSet {
		return 0, nil
	}
	return latestValue - oldestValue, nil
}

// dayOf truncates a timestamp to its UTC calendar date, so that record
// ages come out in whole days regardless of the time of day.
func dayOf(t time.Time) time.Time {
	yy, mm, dd := t.UTC().Date()
	return time.Date(yy, mm, dd, 0, 0, 0, 0, time.UTC)
}
