package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tracklet/goals-service/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrImageNotFound = errors.New("image not found")

// Store is the narrow interface the goal service needs from image storage.
type Store interface {
	Upload(ctx context.Context, image string, userID, goalID int) error
	Download(ctx context.Context, userID, goalID int) (string, error)
}

var _ Store = (*Api)(nil)

// Api talks to the external user-media service which keeps goal images.
// Images are passed through opaquely as base64 strings; this service
// never decodes them.
type Api struct {
	imagesServiceEndpoint string
	httpClient            *http.Client
}

func NewApi(imagesServiceEndpoint string, httpClient *http.Client) *Api {
	return &Api{
		imagesServiceEndpoint: imagesServiceEndpoint,
		httpClient:            httpClient,
	}
}

// imageName mirrors the naming scheme of the media service: user<uid>goal<gid>.
func imageName(userID, goalID int) string {
	return fmt.Sprintf("user%dgoal%d", userID, goalID)
}

func (api *Api) Upload(ctx context.Context, image string, userID, goalID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "images.upload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("goal.id", goalID))

	url := fmt.Sprintf("%s/images/%s", api.imagesServiceEndpoint, imageName(userID, goalID))
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url,
		bytes.NewReader([]byte(image)),
	)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("images service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("images service upload status %d", resp.StatusCode)
	}

	log.Debugf("image %s uploaded", imageName(userID, goalID))
	return nil
}

func (api *Api) Download(ctx context.Context, userID, goalID int) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "images.download")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("goal.id", goalID))

	url := fmt.Sprintf("%s/images/%s", api.imagesServiceEndpoint, imageName(userID, goalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("images service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrImageNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("images service download status %d", resp.StatusCode)
	}

	imageBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read image response: %w", err)
	}

	return string(imageBytes), nil
}
