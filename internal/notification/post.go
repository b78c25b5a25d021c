package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const postTimeout = 10 * time.Second

// poster delivers one JSON document to an HTTP endpoint. secret, when set,
// is masked in any transport error so tokens embedded in the URL never
// reach the logs.
type poster struct {
	name   string
	secret string
	client *http.Client
}

func newPoster(name, secret string) poster {
	return poster{name: name, secret: secret, client: &http.Client{Timeout: postTimeout}}
}

func (p poster) post(ctx context.Context, url string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", p.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: request: %w", p.name, p.mask(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: post: %w", p.name, p.mask(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: status %d", p.name, resp.StatusCode)
	}
	return nil
}

func (p poster) mask(err error) error {
	if p.secret == "" || !strings.Contains(err.Error(), p.secret) {
		return err
	}
	return maskedError{msg: strings.ReplaceAll(err.Error(), p.secret, "***"), cause: err}
}

// maskedError carries redacted text and unwraps to the original error.
type maskedError struct {
	msg   string
	cause error
}

func (e maskedError) Error() string { return e.msg }
func (e maskedError) Unwrap() error { return e.cause }

// Retry re-sends through Next with exponential backoff (Base, 2·Base,
// 4·Base, ...) until it succeeds, Attempts is exhausted or ctx ends.
type Retry struct {
	Next     Notifier
	Attempts int
	Base     time.Duration
}

// WithRetry wraps n with three attempts starting at a one second backoff.
func WithRetry(n Notifier) Retry {
	return Retry{Next: n, Attempts: 3, Base: time.Second}
}

func (r Retry) Send(ctx context.Context, alert Alert) error {
	attempts := max(r.Attempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = r.Next.Send(ctx, alert); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("notify: %w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(r.Base << uint(i)):
		}
	}
	return fmt.Errorf("notify: %d attempts failed: %w", attempts, lastErr)
}
