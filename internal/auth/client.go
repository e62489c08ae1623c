package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tracklet/goals-service/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	megabyte      = 1024 * 1024
	credsCacheTTL = time.Minute
	// freecache expiry is in seconds
	credsLocalCacheExpire = 30
)

// Client resolves bearer tokens into Credentials by asking the external
// auth service. Resolved credentials are cached locally (freecache) and
// in redis for a short while, so a burst of requests from the same client
// does not hammer the auth service.
type Client struct {
	authServiceEndpoint string
	httpClient          *http.Client
	localCache          *freecache.Cache
	redisClient         *redis.Client
}

func NewClient(
	authServiceEndpoint string,
	httpClient *http.Client,
	redisClient *redis.Client,
) *Client {
	return &Client{
		authServiceEndpoint: authServiceEndpoint,
		httpClient:          httpClient,
		localCache:          freecache.NewCache(megabyte),
		redisClient:         redisClient,
	}
}

type credentialsResponse struct {
	Data Credentials `json:"data"`
}

type authErrorResponse struct {
	Message string `json:"Message"`
}

func (c *Client) GetCredentials(ctx context.Context, token string) (_ Credentials, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.getCredentials")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if token == "" {
		return Credentials{}, ErrNoToken
	}

	cacheKey := "auth-creds::" + token

	if credsBytes, cacheErr := c.localCache.Get([]byte(cacheKey)); cacheErr == nil {
		var creds Credentials
		if unmarshalErr := json.Unmarshal(credsBytes, &creds); unmarshalErr == nil {
			span.SetAttributes(attribute.String("creds.source", "local-cache"))
			return creds, nil
		} else {
			log.Errorf("failed to unmarshal locally cached credentials: %s", unmarshalErr)
		}
	}

	if c.redisClient != nil {
		cmd := c.redisClient.Get(ctx, cacheKey)
		if credsJson := cmd.Val(); cmd.Err() == nil && credsJson != "" {
			var creds Credentials
			if unmarshalErr := json.Unmarshal([]byte(credsJson), &creds); unmarshalErr == nil {
				span.SetAttributes(attribute.String("creds.source", "redis"))
				c.setLocalCache(cacheKey, []byte(credsJson))
				return creds, nil
			} else {
				log.Errorf("failed to unmarshal redis cached credentials: %s", unmarshalErr)
			}
		}
	}

	creds, credsBytes, err := c.fetchCredentials(ctx, token)
	if err != nil {
		return Credentials{}, err
	}
	span.SetAttributes(attribute.String("creds.source", "auth-service"))

	c.setLocalCache(cacheKey, credsBytes)
	if c.redisClient != nil {
		if cmdSet := c.redisClient.Set(ctx, cacheKey, credsBytes, credsCacheTTL); cmdSet.Err() != nil {
			log.Errorf("failed to cache credentials in redis: %s", cmdSet.Err())
		}
	}

	return creds, nil
}

func (c *Client) fetchCredentials(ctx context.Context, token string) (Credentials, []byte, error) {
	url := c.authServiceEndpoint + "/auth/credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Credentials{}, nil, fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credentials{}, nil, fmt.Errorf("auth service call: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credentials{}, nil, fmt.Errorf("read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var authErr authErrorResponse
		if err := json.Unmarshal(respBytes, &authErr); err == nil && authErr.Message != "" {
			log.Debugf("auth service refused token: %d: %s", resp.StatusCode, authErr.Message)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Credentials{}, nil, ErrForbidden
		}
		return Credentials{}, nil, fmt.Errorf("auth service status %d", resp.StatusCode)
	}

	var credsResp credentialsResponse
	if err := json.Unmarshal(respBytes, &credsResp); err != nil {
		return Credentials{}, nil, ErrTokenFormat
	}
	if credsResp.Data.Role == "" {
		return Credentials{}, nil, ErrTokenFormat
	}

	credsBytes, err := json.Marshal(credsResp.Data)
	if err != nil {
		return Credentials{}, nil, fmt.Errorf("marshal credentials: %w", err)
	}

	return credsResp.Data, credsBytes, nil
}

func (c *Client) setLocalCache(cacheKey string, credsBytes []byte) {
	if err := c.localCache.Set([]byte(cacheKey), credsBytes, credsLocalCacheExpire); err != nil {
		log.Errorf("failed to cache credentials locally: %s", err)
	}
}
