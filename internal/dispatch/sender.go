package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SendRequest is one downlink to push through the radio network.
type SendRequest struct {
	DeviceID  string
	GatewayID string
	Payload   []byte
	FPort     uint8
}

// GatewaySender is the narrow interface to the downstream gateway network.
// A nil error means delivered; a *PermanentError must not be retried; any
// other error is retryable.
type GatewaySender interface {
	Send(ctx context.Context, req SendRequest) error
}

// PermanentError marks a send failure that retrying cannot fix, such as a
// payload rejected by the network server.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return "permanent send failure: " + e.Reason
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

// HTTPSender delivers downlinks through a network server's enqueue endpoint.
type HTTPSender struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// NewHTTPSender creates a sender posting to the given URL with a bounded
// per-request timeout.
func NewHTTPSender(url string, headers map[string]string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		client:  &http.Client{Timeout: timeout},
		url:     url,
		headers: headers,
	}
}

type downlinkRequest struct {
	DeviceID  string `json:"device_id"`
	GatewayID string `json:"gateway_id"`
	FPort     uint8  `json:"f_port"`
	Data      string `json:"data"`
}

// Send posts the downlink. Client-side rejections (4xx) are permanent;
// transport errors and server-side failures are retryable.
func (s *HTTPSender) Send(ctx context.Context, req SendRequest) error {
	body, err := json.Marshal(downlinkRequest{
		DeviceID:  req.DeviceID,
		GatewayID: req.GatewayID,
		FPort:     req.FPort,
		Data:      base64.StdEncoding.EncodeToString(req.Payload),
	})
	if err != nil {
		return &PermanentError{Reason: fmt.Sprintf("marshal downlink: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range s.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &PermanentError{Reason: fmt.Sprintf("network server rejected downlink: %d %s", resp.StatusCode, detail)}
	}
	return fmt.Errorf("gateway send returned %d: %s", resp.StatusCode, detail)
}
