package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BotAPI defines the Telegram Bot API methods the bot relies on.
// Kept as an interface so the dispatcher and orchestrator can be tested with mocks.
type BotAPI interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
	SendVideo(ctx context.Context, req SendVideoRequest) (*Message, error)
	SendChatAction(ctx context.Context, req SendChatActionRequest) error
	AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error
	SetMyCommands(ctx context.Context, req SetMyCommandsRequest) error
	SetWebhook(ctx context.Context, req SetWebhookRequest) error
	GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error)
	GetToken() string
}

const defaultAPIBase = "https://api.telegram.org"

// Client is a client for the Telegram Bot API.
//
// Три изолированных HTTP-клиента:
//   - httpClient: короткие JSON-вызовы, таймаут 30s, повтор при сетевой ошибке;
//   - longPollingClient: getUpdates, таймаут задаётся через context;
//   - uploadClient: multipart sendVideo, таймаут на всю загрузку файла.
//
// Long polling держит соединение до 25 секунд, а загрузка видео может идти минутами,
// поэтому общий пул соединений приводил бы к таймаутам коротких запросов.
type Client struct {
	token             string
	httpClient        *http.Client
	longPollingClient *http.Client
	uploadClient      *http.Client
	apiURL            string
}

// NewClient creates a new Telegram API client. proxyURL is optional.
func NewClient(token, proxyURL string) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 0,
		}).DialContext,
		// HTTP/2 мультиплексирует запросы через одно соединение, что возвращает
		// конкуренцию между короткими и длинными запросами.
		ForceAttemptHTTP2:     false,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		DisableKeepAlives:     true,
	}

	longPollingTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          2,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	uploadTransport := newUploadTransport()

	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
		longPollingTransport.Proxy = http.ProxyURL(proxy)
		uploadTransport.Proxy = http.ProxyURL(proxy)
	}

	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		// Timeout=0: the deadline comes from the context in GetUpdates.
		longPollingClient: &http.Client{
			Timeout:   0,
			Transport: longPollingTransport,
		},
		uploadClient: &http.Client{
			Timeout:   uploadTimeout,
			Transport: uploadTransport,
		},
		apiURL: fmt.Sprintf("%s/bot%s", defaultAPIBase, token),
	}, nil
}

// GetToken returns the bot token the client was created with.
func (c *Client) GetToken() string {
	return c.token
}

// makeRequest performs a JSON request to the Telegram API.
//
// Повтор (до 2 попыток, пауза 2s) только для сетевых ошибок и ошибок декодирования.
// Ошибки API ("Bad Request" и т.п.) возвращаются сразу.
func (c *Client) makeRequest(ctx context.Context, method string, params interface{}) (*APIResponse, error) {
	startTime := time.Now()

	jsonParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s", c.apiURL, method)

	var lastErr error
	const maxRetries = 2
	const retryDelay = 2 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			recordRetry(method)

			select {
			case <-ctx.Done():
				recordRequestDuration(method, statusTimeout, time.Since(startTime).Seconds())
				recordError(method, errorTypeTimeout)
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonParams))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to perform request: %s", c.redact(err.Error()))
			if ctx.Err() != nil {
				recordRequestDuration(method, statusTimeout, time.Since(startTime).Seconds())
				recordError(method, errorTypeTimeout)
				return nil, lastErr
			}
			if isTimeoutError(err) {
				recordError(method, errorTypeTimeout)
			} else {
				recordError(method, errorTypeNetwork)
			}
			continue
		}

		apiResp, decodeErr := decodeResponse(resp)
		if decodeErr != nil {
			lastErr = decodeErr
			recordError(method, errorTypeDecode)
			continue
		}

		if !apiResp.Ok {
			recordRequestDuration(method, statusError, time.Since(startTime).Seconds())
			recordError(method, errorTypeAPI)
			return nil, apiError(apiResp)
		}

		recordRequestDuration(method, statusSuccess, time.Since(startTime).Seconds())
		return apiResp, nil
	}

	recordRequestDuration(method, statusError, time.Since(startTime).Seconds())
	return nil, lastErr
}

func decodeResponse(resp *http.Response) (*APIResponse, error) {
	defer resp.Body.Close()

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return &apiResp, nil
}

func apiError(resp *APIResponse) error {
	return fmt.Errorf("telegram api error: %s", resp.Description)
}

// redact strips the bot token out of transport errors, which embed the request URL.
func (c *Client) redact(s string) string {
	if c.token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.token, "[REDACTED]")
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled")
}

func unmarshalMessage(resp *APIResponse) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// SendMessage sends a text message, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	resp, err := c.makeRequest(ctx, "sendMessage", req)
	if err != nil {
		return nil, err
	}
	return unmarshalMessage(resp)
}

// AnswerCallbackQuery acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	_, err := c.makeRequest(ctx, "answerCallbackQuery", req)
	return err
}

// SetMyCommands changes the list of the bot's commands.
func (c *Client) SetMyCommands(ctx context.Context, req SetMyCommandsRequest) error {
	_, err := c.makeRequest(ctx, "setMyCommands", req)
	return err
}

// SetWebhook registers a webhook URL. An empty URL removes the webhook.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := c.makeRequest(ctx, "setWebhook", req)
	return err
}

// SendChatAction tells the user that something is happening on the bot's side.
func (c *Client) SendChatAction(ctx context.Context, req SendChatActionRequest) error {
	_, err := c.makeRequest(ctx, "sendChatAction", req)
	return err
}

// GetUpdates receives incoming updates using long polling.
//
// Deadline is req.Timeout plus 10 seconds of slack for network latency.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	const method = "getUpdates"
	startTime := time.Now()

	setLongPollingActive(true)
	defer setLongPollingActive(false)

	jsonParams, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	timeout := time.Duration(req.Timeout+10) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(jsonParams))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.longPollingClient.Do(httpReq)
	if err != nil {
		duration := time.Since(startTime).Seconds()
		if isTimeoutError(err) {
			recordRequestDuration(method, statusTimeout, duration)
			recordError(method, errorTypeTimeout)
		} else {
			recordRequestDuration(method, statusError, duration)
			recordError(method, errorTypeNetwork)
		}
		return nil, fmt.Errorf("failed to perform request: %s", c.redact(err.Error()))
	}

	apiResp, err := decodeResponse(resp)
	if err != nil {
		recordRequestDuration(method, statusError, time.Since(startTime).Seconds())
		recordError(method, errorTypeDecode)
		return nil, err
	}

	if !apiResp.Ok {
		recordRequestDuration(method, statusError, time.Since(startTime).Seconds())
		recordError(method, errorTypeAPI)
		return nil, apiError(apiResp)
	}

	var updates []Update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		recordRequestDuration(method, statusError, time.Since(startTime).Seconds())
		recordError(method, errorTypeDecode)
		return nil, fmt.Errorf("failed to unmarshal updates: %w", err)
	}

	recordRequestDuration(method, statusSuccess, time.Since(startTime).Seconds())
	if len(updates) > 0 {
		recordLongPollingUpdates(len(updates))
	}

	return updates, nil
}
