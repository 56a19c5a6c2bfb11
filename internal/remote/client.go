// Package remote talks to an action-tagged JSON endpoint, such as a
// spreadsheet-backed web app or another instance of this server, and
// exposes it as a store.Store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/models"
	"tournament-desk/internal/store"
	"tournament-desk/internal/validate"
)

// Response is the envelope every action replies with.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  apperr.Code     `json:"code,omitempty"`
}

type Client struct {
	url      string
	http     *http.Client
	maxTries uint
	interval time.Duration

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithMaxTries bounds attempts for read actions. Writes are never retried.
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = n }
}

// WithRetryInterval sets the first backoff delay between read attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

func New(url string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		url:      url,
		http:     &http.Client{Timeout: timeout},
		maxTries: 3,
		interval: backoff.DefaultInitialInterval,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ store.Store = (*Client)(nil)

func (c *Client) Close() error { return nil }

// Login exchanges the admin secret for a session token used on later calls.
func (c *Client) Login(ctx context.Context, secret string) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, "login", map[string]any{"secret": secret}, &out); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return nil
}

// call posts one action and decodes data into out (when non-nil).
func (c *Client) call(ctx context.Context, action string, params map[string]any, out any) error {
	body := map[string]any{"action": action}
	for k, v := range params {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return &apperr.TransportError{Op: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.TransportError{Op: action, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.TransportError{Op: action, Status: resp.StatusCode, Err: err}
	}

	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &apperr.TransportError{Op: action, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
		}
		return &apperr.TransportError{Op: action, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !r.OK || resp.StatusCode < 200 || resp.StatusCode > 299 {
		if domainErr := apperr.FromCode(r.Code, r.Error); domainErr != nil {
			return domainErr
		}
		msg := r.Error
		if msg == "" {
			msg = "request rejected"
		}
		return &apperr.TransportError{Op: action, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return &apperr.TransportError{Op: action, Status: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// read retries transport failures with exponential backoff. Domain errors
// are final.
func (c *Client) read(ctx context.Context, action string, params map[string]any, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.call(ctx, action, params, out)
		if err != nil && !errors.Is(err, apperr.ErrTransport) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// ---------- Events ----------

func (c *Client) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := c.read(ctx, "list_events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	if err := c.read(ctx, "get_event", map[string]any{"eventId": id}, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// SaveEvent updates the event in place and falls back to creating it with
// the same id when the endpoint does not know it yet.
func (c *Client) SaveEvent(ctx context.Context, ev models.Event) error {
	draft := validate.DraftOf(ev)
	err := c.call(ctx, "update_event", map[string]any{"eventId": ev.ID, "patch": draft}, nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return c.call(ctx, "create_event", map[string]any{"event": withID{EventDraft: draft, ID: ev.ID}}, nil)
}

type withID struct {
	models.EventDraft
	ID string `json:"id"`
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.call(ctx, "delete_event", map[string]any{"eventId": id}, nil)
}

// ---------- Registrations ----------

func (c *Client) ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	if err := c.read(ctx, "list_registrations", map[string]any{"eventId": eventID}, &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

func (c *Client) CountRegistrations(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	if err := c.read(ctx, "count_registrations", nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// Register relies on the endpoint to check and append atomically.
func (c *Client) Register(ctx context.Context, eventID string, reg models.Registration) (models.Registration, error) {
	in := models.RegistrationInput{FirstName: reg.FirstName, LastName: reg.LastName, NeuronID: reg.NeuronID}
	var out models.Registration
	if err := c.call(ctx, "register", map[string]any{"eventId": eventID, "registration": in}, &out); err != nil {
		return models.Registration{}, err
	}
	return out, nil
}

func (c *Client) Unregister(ctx context.Context, eventID, neuronID string) (bool, error) {
	var removed bool
	err := c.call(ctx, "unregister", map[string]any{"eventId": eventID, "neuronId": neuronID}, &removed)
	if errors.Is(err, apperr.ErrNotRegistered) {
		return false, nil
	}
	return removed, err
}

// ---------- Subscribers ----------

func (c *Client) Subscribe(ctx context.Context, sub models.Subscriber) (bool, error) {
	var result json.RawMessage
	if err := c.call(ctx, "subscribe", map[string]any{"email": sub.Email}, &result); err != nil {
		return false, err
	}
	var s string
	if json.Unmarshal(result, &s) == nil && s == "exists" {
		return false, nil
	}
	return true, nil
}

// ListSubscribers accepts either subscriber records or bare emails.
func (c *Client) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	var raw json.RawMessage
	if err := c.read(ctx, "list_subscribers", nil, &raw); err != nil {
		return nil, err
	}
	var subs []models.Subscriber
	if err := json.Unmarshal(raw, &subs); err == nil {
		return subs, nil
	}
	var emails []string
	if err := json.Unmarshal(raw, &emails); err != nil {
		return nil, &apperr.TransportError{Op: "list_subscribers", Err: err}
	}
	out := make([]models.Subscriber, 0, len(emails))
	for _, e := range emails {
		out = append(out, models.Subscriber{Email: e})
	}
	return out, nil
}

func (c *Client) CountSubscribers(ctx context.Context) (int, error) {
	var n int
	if err := c.read(ctx, "sub_count", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}
