package propagation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mindnest/auth-service/internal/core/domain"
)

// Outcome classifies one downstream call.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	// OutcomeExists means the target already had the identity (HTTP 409).
	OutcomeExists Outcome = "exists"
	OutcomeFailed Outcome = "failed"
)

// Succeeded reports whether the target now holds the identity.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCreated || o == OutcomeExists
}

// Notifier posts identities to targets.
type Notifier struct {
	client *http.Client
}

// NewNotifier wraps client; a nil client selects a fresh http.Client.
// Deadlines come from the per-call context.
func NewNotifier(client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{}
	}
	return &Notifier{client: client}
}

// Notify sends acc to t and classifies the response. The returned status is
// zero when no response was received.
func (n *Notifier) Notify(ctx context.Context, t Target, acc domain.Account) (Outcome, int, error) {
	payload, err := json.Marshal(t.Body(acc))
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("post %s: %w", t.Name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeCreated, resp.StatusCode, nil
	case resp.StatusCode == http.StatusConflict:
		return OutcomeExists, resp.StatusCode, nil
	default:
		return OutcomeFailed, resp.StatusCode, fmt.Errorf("%s responded %d", t.Name, resp.StatusCode)
	}
}
