// Package transport is the HTTP edge of the pipeline: message send, asset
// upload/delete and thumbnail fetch against the chat backend. Failures that
// look like connectivity problems (timeouts, refused connections, 5xx) are
// wrapped in send.NetworkError so the orchestrator can map them to a toast;
// everything else surfaces as a plain error.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"chatpipe/pkg/logger"
	"chatpipe/pkg/models"
	"chatpipe/pkg/outbound"
	"chatpipe/pkg/send"
)

// Config tunes the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RatePerSec/Burst throttle asset fetches and uploads client-side.
	// Zero disables throttling.
	RatePerSec float64
	Burst      int
}

type Client struct {
	base    string
	apiKey  string
	timeout time.Duration
	hc      *fasthttp.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		hc:      &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout},
		limiter: lim,
	}
}

// Send posts the payload and returns the server's view of the affected
// messages. An empty response body decodes to zero messages, which the
// orchestrator treats as a failure.
func (c *Client) Send(ctx context.Context, channelID string, payload outbound.SendPayload) ([]models.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	status, resp, err := c.do(ctx, "POST", c.base+"/v1/channels/"+channelID+"/messages", "application/json", body)
	if err != nil {
		return nil, &send.NetworkError{Op: "send", Err: err}
	}
	if status >= 500 {
		return nil, &send.NetworkError{Op: "send", Err: fmt.Errorf("status %d", status)}
	}
	if status != fasthttp.StatusOK && status != fasthttp.StatusCreated {
		return nil, fmt.Errorf("send rejected: status %d", status)
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("send response: %w", err)
	}
	return out.Messages, nil
}

// UploadAsset uploads raw image bytes under a client placeholder id. The
// server responds with the persisted descriptor carrying its own asset
// UUID; the caller rebinds to it.
func (c *Client) UploadAsset(ctx context.Context, assetID models.AssetID, channelID string, data []byte, width, height int) (models.MediaAsset, error) {
	if err := c.wait(ctx); err != nil {
		return models.MediaAsset{}, err
	}
	url := fmt.Sprintf("%s/v1/channels/%s/assets?placeholder=%s&w=%d&h=%d", c.base, channelID, assetID, width, height)
	status, resp, err := c.do(ctx, "POST", url, "application/octet-stream", data)
	if err != nil {
		return models.MediaAsset{}, &send.NetworkError{Op: "upload", Err: err}
	}
	if status >= 500 {
		return models.MediaAsset{}, &send.NetworkError{Op: "upload", Err: fmt.Errorf("status %d", status)}
	}
	if status != fasthttp.StatusOK && status != fasthttp.StatusCreated {
		return models.MediaAsset{}, fmt.Errorf("upload rejected: status %d", status)
	}
	var asset models.MediaAsset
	if err := json.Unmarshal(resp, &asset); err != nil {
		return models.MediaAsset{}, fmt.Errorf("upload response: %w", err)
	}
	if asset.UUID == "" {
		return models.MediaAsset{}, fmt.Errorf("upload response missing asset uuid")
	}
	return asset, nil
}

// DeleteAsset is best-effort; callers log and move on.
func (c *Client) DeleteAsset(ctx context.Context, assetID models.AssetID) error {
	status, _, err := c.do(ctx, "DELETE", c.base+"/v1/assets/"+assetID.String(), "", nil)
	if err != nil {
		return &send.NetworkError{Op: "delete_asset", Err: err}
	}
	if status >= 400 && status != fasthttp.StatusNotFound {
		return fmt.Errorf("delete asset: status %d", status)
	}
	return nil
}

// FetchAsset retrieves a (decrypted) thumbnail link. Absolute URLs are
// fetched as-is; relative links resolve against the configured base.
func (c *Client) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.base + "/" + strings.TrimLeft(url, "/")
	}
	status, resp, err := c.do(ctx, "GET", url, "", nil)
	if err != nil {
		return nil, &send.NetworkError{Op: "fetch_asset", Err: err}
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("fetch asset: status %d", status)
	}
	return resp, nil
}

// wait applies the client-side rate limit, honoring cancellation.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// do runs one request with the configured timeout, bounded additionally by
// the context deadline when one is set.
func (c *Client) do(ctx context.Context, method, url, contentType string, body []byte) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.SetBody(body)
	}

	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}
	if err := c.hc.DoTimeout(req, resp, timeout); err != nil {
		logger.Debug("transport_request_failed", "method", method, "url", url, "error", err)
		return 0, nil, err
	}
	out := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), out, nil
}
