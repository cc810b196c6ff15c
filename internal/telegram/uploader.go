package telegram

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// uploadTimeout bounds a whole sendVideo call, body included.
const uploadTimeout = 10 * time.Minute

func newUploadTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 0,
		}).DialContext,
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: 15 * time.Second,
		// Telegram answers only after the whole body is received and processed.
		ResponseHeaderTimeout: 5 * time.Minute,
		DisableKeepAlives:     true,
	}
}

// SendVideo uploads a local file as a video message.
//
// The file is streamed through an io.Pipe so large videos are never held in memory.
// Uploads are not retried: a half-sent multipart body cannot be replayed cheaply,
// and the caller decides what to do with the file on failure.
func (c *Client) SendVideo(ctx context.Context, req SendVideoRequest) (*Message, error) {
	const method = "sendVideo"
	startTime := time.Now()

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeVideoForm(mw, req, f))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadClient.Do(httpReq)
	if err != nil {
		pr.Close()
		duration := time.Since(startTime).Seconds()
		if isTimeoutError(err) {
			recordRequestDuration(method, statusTimeout, duration)
			recordError(method, errorTypeTimeout)
		} else {
			recordRequestDuration(method, statusError, duration)
			recordError(method, errorTypeNetwork)
		}
		return nil, fmt.Errorf("failed to upload video: %s", c.redact(err.Error()))
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

	recordRequestDuration(method, statusSuccess, time.Since(startTime).Seconds())
	if info, statErr := f.Stat(); statErr == nil {
		recordUploadedBytes(info.Size())
	}

	return unmarshalMessage(apiResp)
}

func writeVideoForm(mw *multipart.Writer, req SendVideoRequest, video io.Reader) error {
	fields := map[string]string{
		"chat_id": strconv.FormatInt(req.ChatID, 10),
	}
	if req.Caption != "" {
		fields["caption"] = req.Caption
	}
	if req.SupportsStreaming {
		fields["supports_streaming"] = "true"
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("video", filepath.Base(req.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, video); err != nil {
		return fmt.Errorf("failed to stream video: %w", err)
	}
	return mw.Close()
}
