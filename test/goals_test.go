package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tracklet/goals-service/internal/catalog"
	"github.com/tracklet/goals-service/internal/goals"
	"github.com/tracklet/goals-service/internal/misc"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) resetGoalsData(ctx context.Context) {
	_, err := s.dbPool.Exec(ctx, "DELETE FROM metric_history")
	require.NoError(s.T(), err)
	_, err = s.dbPool.Exec(ctx, "DELETE FROM goal")
	require.NoError(s.T(), err)
}

func (s *IntegrationTestSuite) doRequest(
	ctx context.Context,
	method, url, token string,
	body any,
) (int, []byte) {
	var reqBody io.Reader
	if body != nil {
		bodyJson, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reqBody = bytes.NewReader(bodyJson)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	return resp.StatusCode, respBytes
}

func (s *IntegrationTestSuite) createGoalRequest(
	ctx context.Context,
	token string,
	userID int,
	createReq goals.CreateGoalRequest,
) goals.Goal {
	status, respBytes := s.doRequest(
		ctx, "POST",
		fmt.Sprintf("%s/goals/%d", serverEndpoint, userID),
		token, createReq,
	)
	require.Equal(s.T(), http.StatusCreated, status, string(respBytes))

	var addedGoal goals.Goal
	require.NoError(s.T(), json.Unmarshal(respBytes, &addedGoal))
	return addedGoal
}

func (s *IntegrationTestSuite) listGoalsRequest(
	ctx context.Context,
	token string,
	userID int,
) []goals.GoalWithImage {
	status, respBytes := s.doRequest(
		ctx, "GET",
		fmt.Sprintf("%s/goals/%d", serverEndpoint, userID),
		token, nil,
	)
	require.Equal(s.T(), http.StatusOK, status, string(respBytes))

	var listResp goals.ListGoalsResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &listResp))
	return listResp.Goals
}

func (s *IntegrationTestSuite) updateGoalRequest(
	ctx context.Context,
	token string,
	goalID int,
	update goals.Update,
) goals.Goal {
	status, respBytes := s.doRequest(
		ctx, "PATCH",
		fmt.Sprintf("%s/goals/%d", serverEndpoint, goalID),
		token, update,
	)
	require.Equal(s.T(), http.StatusOK, status, string(respBytes))

	var updatedGoal goals.Goal
	require.NoError(s.T(), json.Unmarshal(respBytes, &updatedGoal))
	return updatedGoal
}

func (s *IntegrationTestSuite) metricProgressRequest(
	ctx context.Context,
	token string,
	userID int,
	metric string,
	days int,
) int {
	url := fmt.Sprintf(
		"%s/goals/%d/metricsProgress/%s?days=%d",
		serverEndpoint, userID, metric, days,
	)
	status, respBytes := s.doRequest(ctx, "GET", url, token, nil)
	require.Equal(s.T(), http.StatusOK, status, string(respBytes))

	var progressResp goals.MetricProgressResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &progressResp))
	return progressResp.Progress
}

// ledgerSnapshot inserts a metric history row directly, daysAgo days in
// the past, bypassing the goal update path.
func (s *IntegrationTestSuite) ledgerSnapshot(ctx context.Context, metric string, userID, value, daysAgo int) {
	_, err := s.dbPool.Exec(ctx, `
		INSERT INTO metric_history (metric, user_id, value, recorded_at)
		VALUES ($1, $2, $3, CURRENT_DATE - $4::int)`,
		metric, userID, value, daysAgo,
	)
	require.NoError(s.T(), err)
}

func (s *IntegrationTestSuite) ledgerRows(ctx context.Context, metric string, userID int) []int {
	rows, err := s.dbPool.Query(ctx, `
		SELECT value FROM metric_history
		WHERE metric = $1 AND user_id = $2
		ORDER BY recorded_at DESC`,
		metric, userID,
	)
	require.NoError(s.T(), err)
	defer rows.Close()

	var values []int
	for rows.Next() {
		var value int
		require.NoError(s.T(), rows.Scan(&value))
		values = append(values, value)
	}
	require.NoError(s.T(), rows.Err())
	return values
}

func (s *IntegrationTestSuite) TestHealthcheck() {
	ctx := context.Background()

	// healthcheck needs no credentials
	status, respBytes := s.doRequest(
		ctx, "GET", serverEndpoint+"/goals/healthcheck", "", nil,
	)
	require.Equal(s.T(), http.StatusOK, status)

	var healthResp misc.HealthcheckResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &healthResp))
	assert.GreaterOrEqual(s.T(), healthResp.Uptime, int64(0))
}

func (s *IntegrationTestSuite) TestVersion() {
	ctx := context.Background()

	status, respBytes := s.doRequest(ctx, "GET", serverEndpoint+"/version", "", nil)
	require.Equal(s.T(), http.StatusOK, status)
	assert.Equal(s.T(), "test-version-info", string(respBytes))
}

func (s *IntegrationTestSuite) TestListMetrics() {
	ctx := context.Background()

	status, respBytes := s.doRequest(
		ctx, "GET", serverEndpoint+"/goals/metrics", testUserToken, nil,
	)
	require.Equal(s.T(), http.StatusOK, status, string(respBytes))

	var metrics []catalog.Metric
	require.NoError(s.T(), json.Unmarshal(respBytes, &metrics))
	assert.Equal(s.T(), []catalog.Metric{
		{Name: "distance", Unit: "km"},
		{Name: "fat", Unit: "kg"},
		{Name: "muscle", Unit: "kg"},
	}, metrics)
}

func (s *IntegrationTestSuite) TestAuth() {
	ctx := context.Background()
	s.resetGoalsData(ctx)

	// no token
	status, _ := s.doRequest(
		ctx, "GET", serverEndpoint+"/goals/1", "", nil,
	)
	assert.Equal(s.T(), http.StatusUnauthorized, status)

	// unknown token
	status, _ = s.doRequest(
		ctx, "GET", serverEndpoint+"/goals/1", "no-such-token", nil,
	)
	assert.Equal(s.T(), http.StatusForbidden, status)

	// user 1 must not create goals for user 2
	status, _ = s.doRequest(
		ctx, "POST", serverEndpoint+"/goals/2", testUserToken,
		goals.CreateGoalRequest{Title: "sneaky", Metric: "muscle"},
	)
	assert.Equal(s.T(), http.StatusForbidden, status)

	// admins can act on anyone
	addedGoal := s.createGoalRequest(ctx, testAdminToken, 1, goals.CreateGoalRequest{
		Title:     "assigned by coach",
		Metric:    "muscle",
		Objective: 5,
	})
	assert.Equal(s.T(), 1, addedGoal.UserID)

	// user 2 must not update or delete user 1's goal
	status, _ = s.doRequest(
		ctx, "DELETE",
		fmt.Sprintf("%s/goals/%d", serverEndpoint, addedGoal.ID),
		testOtherUserToken, nil,
	)
	assert.Equal(s.T(), http.StatusForbidden, status)
}

func (s *IntegrationTestSuite) TestCreateGoalUnknownMetric() {
	ctx := context.Background()
	s.resetGoalsData(ctx)

	status, respBytes := s.doRequest(
		ctx, "POST", serverEndpoint+"/goals/1", testUserToken,
		goals.CreateGoalRequest{Title: "fly to the moon", Metric: "altitude"},
	)
	assert.Equal(s.T(), http.StatusNotFound, status, string(respBytes))
}

func (s *IntegrationTestSuite) TestGoalLifecycle() {
	ctx := context.Background()
	s.resetGoalsData(ctx)

	goalDescription := gofakeit.Sentence(8)
	addedGoal := s.createGoalRequest(ctx, testUserToken, 1, goals.CreateGoalRequest{
		Title:       "gain muscle",
		Description: goalDescription,
		Metric:      "muscle",
		Objective:   5,
		TimeLimit:   "2024-06-01",
	})
	require.NotZero(s.T(), addedGoal.ID)
	assert.Equal(s.T(), 1, addedGoal.UserID)
	assert.Equal(s.T(), 0, addedGoal.Progress)

	userGoals := s.listGoalsRequest(ctx, testUserToken, 1)
	require.Len(s.T(), userGoals, 1)
	assert.Equal(s.T(), "gain muscle", userGoals[0].Title)
	assert.Equal(s.T(), goalDescription, userGoals[0].Description)
	assert.Equal(s.T(), "kg", userGoals[0].Unit)
	assert.Empty(s.T(), userGoals[0].Image)

	// a progress update appends the new value to the ledger
	newProgress := 2
	updatedGoal := s.updateGoalRequest(ctx, testUserToken, addedGoal.ID, goals.Update{
		Progress: &newProgress,
	})
	assert.Equal(s.T(), 2, updatedGoal.Progress)
	assert.Equal(s.T(), []int{2}, s.ledgerRows(ctx, "muscle", 1))

	// a second update on the same day overwrites the day's snapshot
	newProgress = 3
	updatedGoal = s.updateGoalRequest(ctx, testUserToken, addedGoal.ID, goals.Update{
		Progress: &newProgress,
	})
	assert.Equal(s.T(), 3, updatedGoal.Progress)
	assert.Equal(s.T(), []int{3}, s.ledgerRows(ctx, "muscle", 1))

	// a title-only update leaves progress and the ledger alone
	newTitle := "gain more muscle"
	updatedGoal = s.updateGoalRequest(ctx, testUserToken, addedGoal.ID, goals.Update{
		Title: &newTitle,
	})
	assert.Equal(s.T(), "gain more muscle", updatedGoal.Title)
	assert.Equal(s.T(), 3, updatedGoal.Progress)
	assert.Equal(s.T(), []int{3}, s.ledgerRows(ctx, "muscle", 1))

	// single snapshot, nothing older to compare against, so the
	// window query answers with the absolute value
	progress := s.metricProgressRequest(ctx, testUserToken, 1, "muscle", 7)
	assert.Equal(s.T(), 3, progress)

	// deleting the goal keeps the metric history
	status, respBytes := s.doRequest(
		ctx, "DELETE",
		fmt.Sprintf("%s/goals/%d", serverEndpoint, addedGoal.ID),
		testUserToken, nil,
	)
	require.Equal(s.T(), http.StatusOK, status, string(respBytes))

	var deleteResp goals.DeleteGoalResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &deleteResp))
	assert.Equal(s.T(), addedGoal.ID, deleteResp.DeletedID)

	assert.Empty(s.T(), s.listGoalsRequest(ctx, testUserToken, 1))
	assert.Equal(s.T(), []int{3}, s.ledgerRows(ctx, "muscle", 1))
}

func (s *IntegrationTestSuite) TestGoalImage() {
	ctx := context.Background()
	s.resetGoalsData(ctx)

	imagePayload := "aGVsbG8gdGhlcmU="
	addedGoal := s.createGoalRequest(ctx, testUserToken, 1, goals.CreateGoalRequest{
		Title:     "run the marathon",
		Metric:    "distance",
		Objective: 42,
		Image:     imagePayload,
	})
	require.NotZero(s.T(), addedGoal.ID)

	userGoals := s.listGoalsRequest(ctx, testUserToken, 1)
	require.Len(s.T(), userGoals, 1)
	assert.Equal(s.T(), imagePayload, userGoals[0].Image)
	assert.Equal(s.T(), "km", userGoals[0].Unit)
}

func (s *IntegrationTestSuite) TestMetricProgressWindow() {
	ctx := context.Background()
	s.resetGoalsData(ctx)

	s.ledgerSnapshot(ctx, "distance", 1, 3, 10)
	s.ledgerSnapshot(ctx, "distance", 1, 5, 7)
	s.ledgerSnapshot(ctx, "distance", 1, 12, 1)

	// a snapshot exactly on the window boundary is inside the window,
	// the first older one is the baseline: 12 - 3
	assert.Equal(s.T(), 9, s.metricProgressRequest(ctx, testUserToken, 1, "distance", 7))

	// tighter window pushes the 7 day old snapshot out: 12 - 5
	assert.Equal(s.T(), 7, s.metricProgressRequest(ctx, testUserToken, 1, "distance", 5))

	// wide window swallows the whole history, no baseline remains,
	// the answer is the absolute latest value
	assert.Equal(s.T(), 12, s.metricProgressRequest(ctx, testUserToken, 1, "distance", 30))

	// empty ledger reads as zero progress, not as an error
	assert.Equal(s.T(), 0, s.metricProgressRequest(ctx, testUserToken, 1, "fat", 7))

	// unknown metrics are refused
	status, _ := s.doRequest(
		ctx, "GET",
		serverEndpoint+"/goals/1/metricsProgress/altitude?days=7",
		testUserToken, nil,
	)
	assert.Equal(s.T(), http.StatusNotFound, status)

	// another user's ledger is off limits
	status, _ = s.doRequest(
		ctx, "GET",
		serverEndpoint+"/goals/1/metricsProgress/distance?days=7",
		testOtherUserToken, nil,
	)
	assert.Equal(s.T(), http.StatusForbidden, status)
}
