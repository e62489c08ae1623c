package goals

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tracklet/goals-service/internal/auth"
	"github.com/tracklet/goals-service/internal/catalog"
	"github.com/tracklet/goals-service/internal/middleware"
	"github.com/tracklet/goals-service/internal/telemetry/metrics"
	"github.com/tracklet/goals-service/internal/telemetry/tracing"
	"github.com/tracklet/goals-service/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=goals_test

type goalsService interface {
	Create(ctx context.Context, creds auth.Credentials, userID int, goal Goal, image string) (*Goal, error)
	List(ctx context.Context, creds auth.Credentials, userID int) ([]GoalWithImage, error)
	Update(ctx context.Context, creds auth.Credentials, goalID int, update Update) (*Goal, error)
	Delete(ctx context.Context, creds auth.Credentials, goalID int) error
	MetricProgress(ctx context.Context, creds auth.Credentials, userID int, metric string, days int) (int, error)
	ListMetrics(ctx context.Context, creds auth.Credentials) ([]catalog.Metric, error)
}

// DefaultWindowDays is the lookback used when a progress query does
// not say how far back to look.
const DefaultWindowDays = 7

type CreateGoalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Metric      string `json:"metric"`
	Objective   int    `json:"objective"`
	TimeLimit   string `json:"timeLimit"`
	Image       string `json:"image"`
}

type DeleteGoalResponse struct {
	DeletedID int `json:"deletedId"`
}

type ListGoalsResponse struct {
	Goals []GoalWithImage `json:"goals"`
}

type MetricProgressResponse struct {
	Progress int `json:"progress"`
}

type Handler struct {
	service goalsService
	metrics *metrics.Manager
}

func NewHandler(service goalsService, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		service: service,
		metrics: metricsManager,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	progressQueriesPerMin int,
) {
	// "/metrics" before "/{userID}", mux matches in registration order
	router.HandleFunc("/metrics", handler.HandleListMetrics).Methods("GET", "OPTIONS")

	// window queries scan the whole ledger, keep them rate limited
	progressRouter := router.PathPrefix("/{userID}/metricsProgress").Subrouter()
	progressRouter.HandleFunc("/{metric}", handler.HandleMetricProgress).Methods("GET", "OPTIONS")
	progressRouter.Use(middleware.RateLimit(
		rateLimiter, "metrics-progress", progressQueriesPerMin, handler.metrics,
	))

	router.HandleFunc("/{userID}", handler.HandleCreate).Methods("POST", "OPTIONS")
	router.HandleFunc("/{userID}", handler.HandleList).Methods("GET", "OPTIONS")
	router.HandleFunc("/{goalID}", handler.HandleUpdate).Methods("PATCH", "PUT", "OPTIONS")
	router.HandleFunc("/{goalID}", handler.HandleDelete).Methods("DELETE", "OPTIONS")
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.create")
	defer span.End()

	creds, err := auth.CredentialsFromCtx(ctx)
	if err != nil {
		http.Error(w, "no credentials", http.StatusUnauthorized)
		return
	}

	userID, err := pathID(r, "userID")
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var req CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("create goal, unmarshal json params: %s", err)
		http.Error(w, "create goal failed", http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.Metric == "" {
		http.Error(w, "error, goal title or metric empty", http.StatusBadRequest)
		return
	}

	addedGoal, err := handler.service.Create(ctx, creds, userID, Goal{
		Title:       req.Title,
		Description: req.Description,
		Metric:      req.Metric,
		Objective:   req.Objective,
		TimeLimit:   req.TimeLimit,
	}, req.Image)
	if err != nil {
		handler.writeError(w, "create goal", err)
		return
	}

	handler.metrics.CounterGoalsCreated.Inc()

	goalJson, err := json.Marshal(addedGoal)
	if err != nil {
		log.Errorf("failed to marshal created goal: %s", err)
		http.Error(w, "error, failed to create goal", http.StatusInternalServerError)
		return
	}

	log.Debugf("new goal added for user %d: %d", addedGoal.UserID, addedGoal.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, goalJson, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.list")
	defer span.End()

	creds, err := auth.CredentialsFromCtx(ctx)
	if err != nil {
		http.Error(w, "no credentials", http.StatusUnauthorized)
		return
	}

	userID, err := pathID(r, "userID")
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	userGoals, err := handler.service.List(ctx, creds, userID)
	if err != nil {
		handler.writeError(w, "list goals", err)
		return
	}

	respJson, err := json.Marshal(ListGoalsResponse{Goals: userGoals})
	if err != nil {
		log.Errorf("failed to marshal goals list: %s", err)
		http.Error(w, "error, failed to list goals", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.update")
	defer span.End()

	creds, err := auth.CredentialsFromCtx(ctx)
	if err != nil {
		http.Error(w, "no credentials", http.StatusUnauthorized)
		return
	}

	goalID, err := pathID(r, "goalID")
	if err != nil {
		http.Error(w, "invalid goal id", http.StatusBadRequest)
		return
	}

	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Tracef("update goal, unmarshal json params: %s", err)
		http.Error(w, "update goal failed", http.StatusBadRequest)
		return
	}

	updatedGoal, err := handler.service.Update(ctx, creds, goalID, update)
	if err != nil {
		handler.writeError(w, "update goal", err)
		return
	}

	handler.metrics.CounterProgressUpdates.Inc()
	if update.Progress != nil {
		handler.metrics.CounterLedgerAppends.Inc()
	}

	goalJson, err := json.Marshal(updatedGoal)
	if err != nil {
		log.Errorf("failed to marshal updated goal: %s", err)
		http.Error(w, "error, failed to update goal", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, goalJson)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.delete")
	defer span.End()

	creds, err := auth.CredentialsFromCtx(ctx)
	if err != nil {
		http.Error(w, "no credentials", http.StatusUnauthorized)
		return
	}

	goalID, err := pathID(r, "goalID")
	if err != nil {
		http.Error(w, "invalid goal id", http.StatusBadRequest)
		return
	}

	if err := handler.service.Delete(ctx, creds, goalID); err != nil {
		handler.writeError(w, "delete goal", err)
		return
	}

	handler.metrics.CounterGoalsDeleted.Inc()

	respJson, err := json.Marshal(DeleteGoalResponse{DeletedID: goalID})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "error, failed to delete goal", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandleMetricProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.metricProgress")
	defer span.End()

	creds, err := auth.CredentialsFromCtx(ctx)
	if err != nil {
		http.Error(w, "no credentials", http.StatusUnauthorized)
		return
	}

	userID, err := pathID(r, "userID")
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	vars := mux.Vars(r)
	metricName := vars["metric"]
	if metricName == "" {
		http.Error(w, "metric name empty", http.StatusBadRequest)
		return
	}

	days := DefaultWindowDays
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		days, err = strconv.Atoi(daysParam)
		if err != nil || days < 0 {
			http.Error(w, "invalid days param", http.StatusBadRequest)
			return
		}
	}

	progress, err := handler.service.MetricProgress(ctx, creds, userID, metricName, days)
	if err != nil {
		handler.writeError(w, "metric progress", err)
		return
	}

	handler.metrics.CounterWindowQueries.Inc()

	respJson, err := json.Marshal(MetricProgressResponse{Progress: progress})
	if err != nil {
		log.Errorf("failed to marshal metric progress: %s", err)
		http.Error(w, "error, failed to get metric progress", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandleListMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.listMetrics")
	defer span.End()

	creds, err := auth.CredentialsFromCtx(ctx)
	if err != nil {
		http.Error(w, "no credentials", http.StatusUnauthorized)
		return
	}

	catalogMetrics, err := handler.service.ListMetrics(ctx, creds)
	if err != nil {
		handler.writeError(w, "list metrics", err)
		return
	}

	respJson, err := json.Marshal(catalogMetrics)
	if err != nil {
		log.Errorf("failed to marshal metrics catalog: %s", err)
		http.Error(w, "error, failed to list metrics", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

// writeError maps service errors onto status codes. Anything not in
// the taxonomy is a 500 with a generic message.
func (handler *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrGoalNotFound):
		http.Error(w, "goal not found", http.StatusNotFound)
	case errors.Is(err, catalog.ErrMetricNotFound):
		http.Error(w, "metric not found", http.StatusNotFound)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		log.Errorf("%s: %s", op, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func pathID(r *http.Request, name string) (int, error) {
	vars := mux.Vars(r)
	idStr := vars[name]
	if idStr == "" {
		return 0, errors.New("empty id")
	}
	return strconv.Atoi(idStr)
}
