package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	headerSignature   = "X-Webhook-Signature"
	headerWebhookID   = "X-Webhook-ID"
	headerEventType   = "X-Event-Type"
	headerContentType = "Content-Type"
	headerUserAgent   = "User-Agent"

	// maxResponseBodyBytes bounds what the ledger records per attempt.
	maxResponseBodyBytes = 64 * 1024
)

// Succeeded reports whether the attempt drew a 2xx response.
func (o AttemptOutcome) Succeeded() bool {
	return o.StatusCode != nil && *o.StatusCode >= 200 && *o.StatusCode < 300
}

// Executor signs and sends one HTTP attempt for a queue entry and
// classifies the outcome. It never retries on its own; the dispatcher
// owns the retry decision.
type Executor struct {
	client    *http.Client
	signer    EnvelopeSigner
	userAgent string
	timeout   time.Duration
	now       func() time.Time
}

func NewExecutor(client *http.Client, signer EnvelopeSigner, userAgent string, timeout time.Duration) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	if signer == nil {
		signer = HMACEnvelopeSigner{}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultConfig().UserAgent
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Dispatch.HTTPTimeout
	}
	return &Executor{
		client:    client,
		signer:    signer,
		userAgent: userAgent,
		timeout:   timeout,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Execute posts the signed envelope to the endpoint URL. Transport
// errors and non-2xx responses both come back as a non-succeeded
// outcome; the returned error is reserved for malformed input that can
// never produce a request.
func (e *Executor) Execute(ctx context.Context, endpoint Endpoint, envelope Envelope) (AttemptOutcome, error) {
	if e == nil || e.client == nil {
		return AttemptOutcome{}, fmt.Errorf("core: executor is not configured")
	}
	if strings.TrimSpace(endpoint.URL) == "" {
		return AttemptOutcome{}, fmt.Errorf("core: endpoint url is required")
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return AttemptOutcome{}, fmt.Errorf("core: marshal delivery envelope: %w", err)
	}
	signature, err := e.signer.Sign(endpoint.Secret, envelope.Timestamp.Unix(), body)
	if err != nil {
		return AttemptOutcome{}, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return AttemptOutcome{}, fmt.Errorf("core: build delivery request: %w", err)
	}

	req.Header.Set(headerContentType, "application/json")
	req.Header.Set(headerUserAgent, e.userAgent)
	for key, value := range endpoint.Headers {
		if isProtectedHeader(key) {
			continue
		}
		req.Header.Set(key, value)
	}
	req.Header.Set(headerSignature, signature)
	req.Header.Set(headerWebhookID, endpoint.ID)
	req.Header.Set(headerEventType, envelope.Event)

	startedAt := e.now()
	resp, err := e.client.Do(req)
	outcome := AttemptOutcome{Duration: e.now().Sub(startedAt)}
	if err != nil {
		outcome.Error = err.Error()
		return outcome, nil
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	outcome.StatusCode = &status
	responseBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if readErr == nil {
		outcome.Body = string(responseBody)
	}
	if !outcome.Succeeded() {
		outcome.Error = fmt.Sprintf("endpoint responded with status %d", status)
	}
	return outcome, nil
}

func isProtectedHeader(key string) bool {
	switch {
	case strings.EqualFold(key, headerSignature),
		strings.EqualFold(key, headerWebhookID),
		strings.EqualFold(key, headerEventType):
		return true
	}
	return false
}
