package goals

import (
	"context"
	"errors"
	"time"

	"github.com/tracklet/goals-service/internal/auth"
	"github.com/tracklet/goals-service/internal/catalog"
	"github.com/tracklet/goals-service/internal/images"
	"github.com/tracklet/goals-service/internal/telemetry/tracing"
	"github.com/tracklet/goals-service/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

//go:generate mockgen -source=$GOFILE -destination=service_mocks_test.go -package=goals_test

type goalsRepo interface {
	Add(ctx context.Context, goal Goal) (*Goal, error)
	Get(ctx context.Context, id int) (*Goal, error)
	ListByUser(ctx context.Context, userID int) ([]Goal, error)
	Update(ctx context.Context, id int, update Update, stampedAt time.Time, authorize func(goal *Goal) error) (*Goal, error)
	Delete(ctx context.Context, id int) error
}

type metricsCatalog interface {
	Get(ctx context.Context, name string) (*catalog.Metric, error)
	List(ctx context.Context) ([]catalog.Metric, error)
}

type progressAggregator interface {
	ProgressWithin(ctx context.Context, metric string, userID, days int) (int, error)
}

// Service orchestrates goals, the metric ledger and the external
// collaborators. All operations authorize against the caller's
// credentials before touching storage.
type Service struct {
	repo       goalsRepo
	catalog    metricsCatalog
	aggregator progressAggregator
	images     images.Store
	policy     *auth.Policy
	now        func() time.Time
}

func NewService(
	repo goalsRepo,
	metricsCatalog metricsCatalog,
	aggregator progressAggregator,
	imagesStore images.Store,
	policy *auth.Policy,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       repo,
		catalog:    metricsCatalog,
		aggregator: aggregator,
		images:     imagesStore,
		policy:     policy,
		now:        now,
	}
}

// Create makes a new goal for the given user. The target metric must
// exist in the catalog. An attached image is uploaded best-effort; a
// failed upload does not fail the creation.
func (s *Service) Create(
	ctx context.Context,
	creds auth.Credentials,
	userID int,
	goal Goal,
	image string,
) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.goals.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	if !s.policy.CanActOnUser(creds, userID) {
		return nil, auth.ErrForbidden
	}

	if _, err := s.catalog.Get(ctx, goal.Metric); err != nil {
		return nil, err
	}

	goal.UserID = userID
	goal.Progress = 0

	addedGoal, err := s.repo.Add(ctx, goal)
	if err != nil {
		// backstop for a metric removed between the catalog check and
		// the insert
		if pkg.IsForeignKeyViolationError(err) {
			return nil, catalog.ErrMetricNotFound
		}
		return nil, err
	}

	if image != "" {
		if err := s.images.Upload(ctx, image, addedGoal.UserID, addedGoal.ID); err != nil {
			log.Errorf("upload image for goal %d: %s", addedGoal.ID, err)
		}
	}

	return addedGoal, nil
}

// List returns the user's goals together with their images. A missing
// image is fine, and an images service outage degrades to goals
// without images rather than failing the listing.
func (s *Service) List(
	ctx context.Context,
	creds auth.Credentials,
	userID int,
) (_ []GoalWithImage, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.goals.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	if !s.policy.CanActOnUser(creds, userID) {
		return nil, auth.ErrForbidden
	}

	userGoals, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	catalogMetrics, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	metricUnits := make(map[string]string, len(catalogMetrics))
	for _, m := range catalogMetrics {
		metricUnits[m.Name] = m.Unit
	}

	goalsWithImages := make([]GoalWithImage, 0, len(userGoals))
	for _, goal := range userGoals {
		image, err := s.images.Download(ctx, goal.UserID, goal.ID)
		if err != nil && !errors.Is(err, images.ErrImageNotFound) {
			log.Errorf("download image for goal %d: %s", goal.ID, err)
		}
		goalsWithImages = append(goalsWithImages, GoalWithImage{
			Goal:  goal,
			Unit:  metricUnits[goal.Metric],
			Image: image,
		})
	}

	return goalsWithImages, nil
}

// Update applies a partial update to a goal. When the update changes
// the progress value, the resulting metric snapshot lands in the ledger
// within the same transaction, stamped with the current date.
func (s *Service) Update(
	ctx context.Context,
	creds auth.Credentials,
	goalID int,
	update Update,
) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.goals.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("goal.id", goalID))

	return s.repo.Update(ctx, goalID, update, s.now(), func(goal *Goal) error {
		if !s.policy.CanActOnGoal(creds, goal.UserID) {
			return auth.ErrForbidden
		}
		return nil
	})
}

// Delete removes a goal. The metric history the goal produced stays.
func (s *Service) Delete(
	ctx context.Context,
	creds auth.Credentials,
	goalID int,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.goals.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("goal.id", goalID))

	goal, err := s.repo.Get(ctx, goalID)
	if err != nil {
		return err
	}

	if !s.policy.CanActOnGoal(creds, goal.UserID) {
		return auth.ErrForbidden
	}

	return s.repo.Delete(ctx, goalID)
}

// MetricProgress answers how much the metric changed for the user
// within the last `days` days.
func (s *Service) MetricProgress(
	ctx context.Context,
	creds auth.Credentials,
	userID int,
	metric string,
	days int,
) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.goals.metricProgress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("metric", metric))
	span.SetAttributes(attribute.Int("window.days", days))

	if !s.policy.CanActOnUser(creds, userID) {
		return 0, auth.ErrForbidden
	}

	return s.aggregator.ProgressWithin(ctx, metric, userID, days)
}

// ListMetrics returns the metric catalog, for admins and users alike.
func (s *Service) ListMetrics(
	ctx context.Context,
	creds auth.Credentials,
) (_ []catalog.Metric, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.goals.listMetrics")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if !s.policy.CanListMetrics(creds) {
		return nil, auth.ErrForbidden
	}

	return s.catalog.List(ctx)
}
