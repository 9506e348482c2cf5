package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/emberwake/relaygate/src/structs"
	"github.com/emberwake/relaygate/src/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrRateLimitExceeded  = errors.New("retried rate limited request too many times")
	ErrMissingContentType = errors.New("content type header required for payload")
)

type HTTPError struct {
	Status int
	Method string
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s '%s' -> %d", e.Method, e.URL, e.Status)
}

// Additional attempts after a 429 before giving up.
const maxRateLimitRetries = 3

// Client is the REST primitive shared by the gateway (URL discovery) and
// the outbound webhook path. Rate limiting is reactive: bucket state from
// response headers is recorded for diagnostics, and 429 responses are
// retried after the server-provided delay.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	userAgent  string
	buckets    *bucketTable
	log        zerolog.Logger
}

func NewClient(cfg utils.AppConfig, logger zerolog.Logger) *Client {
	userAgent := "RelayGate/1.0 (Go; +https://github.com/emberwake/relaygate)"
	if cfg.UserAgentPrefix != "" {
		userAgent = cfg.UserAgentPrefix + " " + userAgent
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    fmt.Sprintf("%s/v%d", cfg.APIBaseURL, cfg.APIVersion),
		botToken:   cfg.BotToken,
		userAgent:  userAgent,
		buckets:    newBucketTable(),
		log:        logger,
	}
}

// Request performs a single API call, transparently retrying on 429.
// A nil payload yields a bodyless request; a non-nil payload requires a
// Content-Type entry in headers. A 204 response returns a nil body.
func (c *Client) Request(ctx context.Context, method string, endpoint string, headers map[string]string, payload []byte) ([]byte, error) {
	if payload != nil {
		if _, ok := headers["Content-Type"]; !ok {
			return nil, ErrMissingContentType
		}
	}
	url := c.baseURL + "/" + endpoint
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.log.Debug().Int("attempt", attempt).Str("method", method).Str("endpoint", endpoint).Msg("retrying rate limited request")
		}
		body, retryAfter, err := c.do(ctx, method, url, headers, payload)
		if err == nil {
			return body, nil
		}
		if retryAfter <= 0 {
			return nil, err
		}
		if attempt >= maxRateLimitRetries {
			return nil, ErrRateLimitExceeded
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

var errRateLimited = errors.New("rate limited")

// do runs one attempt. A positive retryAfter alongside the error marks a
// retryable 429.
func (c *Client) do(ctx context.Context, method string, url string, headers map[string]string, payload []byte) ([]byte, time.Duration, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json; */*")
	req.Header.Set("Authorization", "Bot "+c.botToken)
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, err
	}

	bucketID := res.Header.Get("X-RateLimit-Bucket")
	if bucketID != "" {
		c.buckets.record(bucketID, res.Header)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		var limit structs.RateLimit
		if err := json.Unmarshal(body, &limit); err != nil {
			return nil, 0, fmt.Errorf("undecodable rate limit response: %w", err)
		}
		scope := "route"
		if limit.Global || res.Header.Get("X-RateLimit-Global") == "1" {
			scope = "global"
		}
		c.log.Warn().
			Str("method", method).
			Str("url", url).
			Str("bucket", bucketID).
			Str("scope", scope).
			Float64("retry_after", limit.RetryAfter).
			Msg("hit rate limit")
		return nil, time.Duration(limit.RetryAfter * float64(time.Second)), errRateLimited
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, 0, &HTTPError{Status: res.StatusCode, Method: method, URL: url}
	}
	if res.StatusCode == http.StatusNoContent {
		return nil, 0, nil
	}
	return body, 0, nil
}

// RequestJSON marshals payload (when non-nil) and unmarshals the response
// into out (when non-nil and the response has a body).
func (c *Client) RequestJSON(ctx context.Context, method string, endpoint string, payload any, out any) error {
	var body []byte
	var headers map[string]string
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = encoded
		headers = map[string]string{"Content-Type": "application/json; charset=utf-8"}
	}
	res, err := c.Request(ctx, method, endpoint, headers, body)
	if err != nil {
		return err
	}
	if out == nil || len(res) == 0 {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return fmt.Errorf("failed to unmarshal response for %s '%s': %w", method, endpoint, err)
	}
	return nil
}

// GatewayURL asks the API where the gateway currently lives.
// https://discord.com/developers/docs/topics/gateway#get-gateway-bot
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	var gateway structs.GatewayBot
	if err := c.RequestJSON(ctx, http.MethodGet, "gateway/bot", nil, &gateway); err != nil {
		return "", err
	}
	if gateway.URL == "" {
		return "", errors.New("gateway response missing url")
	}
	return gateway.URL, nil
}

// ExecuteWebhook posts a message through a webhook.
// https://discord.com/developers/docs/resources/webhook#execute-webhook
func (c *Client) ExecuteWebhook(ctx context.Context, id string, token string, wait bool, msg structs.WebhookMessage) error {
	endpoint := fmt.Sprintf("webhooks/%s/%s?wait=%s", id, token, strconv.FormatBool(wait))
	return c.RequestJSON(ctx, http.MethodPost, endpoint, msg, nil)
}

// Buckets snapshots the observed rate limit state for diagnostics.
func (c *Client) Buckets() []Bucket {
	return c.buckets.snapshot()
}
