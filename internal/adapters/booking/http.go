package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

// HTTPClient talks JSON/HTTP to the remote booking service. It implements
// the same three interfaces as the embedded store.
type HTTPClient struct {
	base   string
	client *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		base:   baseURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Lookup(ctx context.Context, id domain.AppointmentID) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.get(ctx, "/api/appointments/"+url.PathEscape(string(id)), &snap, core.ErrAppointmentNotFound)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (c *HTTPClient) FindUser(ctx context.Context, id domain.UserID) (domain.UserProfile, error) {
	var p domain.UserProfile
	err := c.get(ctx, "/api/users/"+url.PathEscape(string(id)), &p, core.ErrUnknownUser)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

type transitionRequest struct {
	ActorID *domain.UserID `json:"actorId,omitempty"`
}

type transitionResponse struct {
	AppointmentID   domain.AppointmentID     `json:"appointmentId"`
	Status          domain.AppointmentStatus `json:"status"`
	StartedAt       time.Time                `json:"startedAt"`
	EndedAt         *time.Time               `json:"endedAt,omitempty"`
	DurationMinutes int                      `json:"durationMinutes"`
}

func (c *HTTPClient) StartCall(ctx context.Context, id domain.AppointmentID, actor *domain.UserID) (core.CallRecord, error) {
	return c.transition(ctx, id, actor, "start")
}

func (c *HTTPClient) EndCall(ctx context.Context, id domain.AppointmentID, actor *domain.UserID) (core.CallRecord, error) {
	return c.transition(ctx, id, actor, "end")
}

func (c *HTTPClient) transition(ctx context.Context, id domain.AppointmentID, actor *domain.UserID, verb string) (core.CallRecord, error) {
	body, err := json.Marshal(transitionRequest{ActorID: actor})
	if err != nil {
		return core.CallRecord{}, err
	}
	endpoint := c.base + "/api/appointments/" + url.PathEscape(string(id)) + "/" + verb
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.CallRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return core.CallRecord{}, fmt.Errorf("booking %s call: %w", verb, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return core.CallRecord{}, core.ErrAppointmentNotFound
	case http.StatusConflict:
		return core.CallRecord{}, core.ErrInvalidState
	default:
		return core.CallRecord{}, fmt.Errorf("booking %s call: unexpected status %d", verb, resp.StatusCode)
	}

	var tr transitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return core.CallRecord{}, fmt.Errorf("booking %s call: decode: %w", verb, err)
	}
	return core.CallRecord{
		AppointmentID:   tr.AppointmentID,
		Status:          tr.Status,
		StartedAt:       tr.StartedAt,
		EndedAt:         tr.EndedAt,
		DurationMinutes: tr.DurationMinutes,
	}, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("booking get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return notFound
	default:
		return fmt.Errorf("booking get %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
