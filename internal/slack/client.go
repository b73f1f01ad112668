// Package slack implements the outbound notification gateway and inbound
// request authenticity checks for the Slack Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/logolab/internal/announce"
	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://slack.com/api"
	defaultHTTPExpiry = 10 * time.Second
)

var (
	errMissingBotToken = errors.New("bot token required")
	// ErrInvalidClientConfig indicates the client cannot be constructed.
	ErrInvalidClientConfig = errors.New("slack: invalid client config")
	// ErrAPIFailure indicates Slack accepted the request but reported an error.
	ErrAPIFailure = errors.New("slack: api call failed")
)

// ClientConfig bundles configuration for the Web API client.
type ClientConfig struct {
	BotToken   string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client posts, updates and ephemerally notifies via the Slack Web API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a Web API client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingBotToken)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPExpiry}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// PostMessage posts a message to a channel and returns its reference.
func (c *Client) PostMessage(ctx context.Context, channel string, message announce.Message) (announce.MessageRef, error) {
	payload := map[string]interface{}{
		"channel": channel,
		"text":    message.Text,
	}
	if len(message.Blocks) > 0 {
		payload["blocks"] = message.Blocks
	}

	response, err := c.call(ctx, "chat.postMessage", payload)
	if err != nil {
		return announce.MessageRef{}, err
	}
	return announce.MessageRef{Channel: response.Channel, Timestamp: response.TS}, nil
}

// UpdateMessage replaces a previously posted message in place.
func (c *Client) UpdateMessage(ctx context.Context, channel, timestamp string, message announce.Message) error {
	payload := map[string]interface{}{
		"channel": channel,
		"ts":      timestamp,
		"text":    message.Text,
	}
	if len(message.Blocks) > 0 {
		payload["blocks"] = message.Blocks
	}

	_, err := c.call(ctx, "chat.update", payload)
	return err
}

// PostEphemeral sends a notice visible only to one user in a channel.
func (c *Client) PostEphemeral(ctx context.Context, channel, platformUserID, text string) error {
	_, err := c.call(ctx, "chat.postEphemeral", map[string]interface{}{
		"channel": channel,
		"user":    platformUserID,
		"text":    text,
	})
	return err
}

func (c *Client) call(ctx context.Context, method string, payload map[string]interface{}) (apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, fmt.Errorf("slack: encode %s request: %w", method, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, fmt.Errorf("slack: build %s request: %w", method, err)
	}
	request.Header.Set("Content-Type", "application/json; charset=utf-8")
	request.Header.Set("Authorization", "Bearer "+c.token)

	httpResponse, err := c.httpClient.Do(request)
	if err != nil {
		return apiResponse{}, fmt.Errorf("slack: %s request failed: %w", method, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return apiResponse{}, fmt.Errorf("%w: %s returned status %d", ErrAPIFailure, method, httpResponse.StatusCode)
	}

	var response apiResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&response); err != nil {
		return apiResponse{}, fmt.Errorf("slack: decode %s response: %w", method, err)
	}
	if !response.OK {
		c.logger.Warn("slack api call rejected",
			zap.String("method", method),
			zap.String("error", response.Error))
		return apiResponse{}, fmt.Errorf("%w: %s: %s", ErrAPIFailure, method, response.Error)
	}

	return response, nil
}
