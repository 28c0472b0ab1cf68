package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPGateway talks to the calendar provider's JSON API.
type HTTPGateway struct {
	http   *http.Client
	apiKey string
	base   string
}

// NewHTTPGateway builds a gateway with a hard request timeout; a hanging
// provider degrades the turn, it never hangs it.
func NewHTTPGateway(base, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		http:   &http.Client{Timeout: timeout},
		apiKey: apiKey,
		base:   base,
	}
}

func (c *HTTPGateway) ListSlots(ctx context.Context, tenant string, rng Range, cons Constraints) ([]Slot, error) {
	q := url.Values{}
	q.Set("tenant", tenant)
	q.Set("from", rng.From.Format(time.RFC3339))
	q.Set("to", rng.To.Format(time.RFC3339))
	if cons.Preference != "" {
		q.Set("preference", cons.Preference)
	}
	if cons.NotBeforeHour > 0 {
		q.Set("not_before_hour", fmt.Sprint(cons.NotBeforeHour))
	}
	req, err := http.NewRequestWithContext(ctx, "GET", c.base+"/slots?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("calendar ListSlots: %s: %s", resp.Status, string(b))
	}
	var parsed struct {
		Slots []Slot `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Slots, nil
}

func (c *HTTPGateway) Commit(ctx context.Context, tenant string, slot Slot, holder string) CommitResult {
	body := map[string]any{
		"tenant": tenant,
		"ref":    slot.Ref,
		"start":  slot.Start.Format(time.RFC3339),
		"end":    slot.End.Format(time.RFC3339),
		"holder": holder,
	}
	var out bytes.Buffer
	if err := json.NewEncoder(&out).Encode(body); err != nil {
		return CommitResult{Outcome: OutcomeTechnical, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.base+"/bookings", &out)
	if err != nil {
		return CommitResult{Outcome: OutcomeTechnical, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return CommitResult{Outcome: OutcomeTechnical, Err: err}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode/100 == 2:
		var parsed struct {
			Ref string `json:"ref"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return CommitResult{Outcome: OutcomeTechnical, Err: err}
		}
		return CommitResult{Outcome: OutcomeOK, Ref: parsed.Ref}
	case resp.StatusCode == http.StatusConflict:
		return CommitResult{Outcome: OutcomeConflict, Err: statusErr("Commit", resp)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return CommitResult{Outcome: OutcomePermissionDenied, Err: statusErr("Commit", resp)}
	default:
		return CommitResult{Outcome: OutcomeTechnical, Err: statusErr("Commit", resp)}
	}
}

func (c *HTTPGateway) Cancel(ctx context.Context, tenant string, ref string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.base+"/bookings/"+url.PathEscape(ref)+"?tenant="+url.QueryEscape(tenant), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode/100 != 2 {
		return false, statusErr("Cancel", resp)
	}
	return true, nil
}

func (c *HTTPGateway) FindBooking(ctx context.Context, tenant string, name string) (*Slot, error) {
	q := url.Values{}
	q.Set("tenant", tenant)
	q.Set("holder", name)
	req, err := http.NewRequestWithContext(ctx, "GET", c.base+"/bookings?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusErr("FindBooking", resp)
	}
	var parsed struct {
		Bookings []Slot `json:"bookings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Bookings) == 0 {
		return nil, nil
	}
	return &parsed.Bookings[0], nil
}

func statusErr(op string, resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("calendar %s: %s: %s", op, resp.Status, string(b))
}
