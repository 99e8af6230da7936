package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roach88/pixelgrid/internal/gateway"
)

// Client is a gateway.Gateway backed by a relay Server.
//
// Thread-safety: all methods are safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	dialer   *websocket.Dialer
	clientID string
}

var _ gateway.Gateway = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for row requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClientID sets the X-Client-ID header sent with every request.
func WithClientID(id string) ClientOption {
	return func(c *Client) {
		c.clientID = id
	}
}

// NewClient returns a client for the relay at baseURL (http or https).
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url %q: scheme must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		base:   u,
		http:   http.DefaultClient,
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchAll implements gateway.Gateway.
func (c *Client) FetchAll(ctx context.Context) ([]gateway.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, "/pixels", nil, nil)
	if err != nil {
		return nil, gateway.NewFetchError(err)
	}
	defer resp.Body.Close()

	var recs []gateway.Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, gateway.NewFetchError(fmt.Errorf("decode records: %w", err))
	}
	return recs, nil
}

// Upsert implements gateway.Gateway.
func (c *Client) Upsert(ctx context.Context, rec gateway.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return gateway.NewWriteError("upsert", rec.ID, err)
	}
	resp, err := c.do(ctx, http.MethodPut, "/pixels/"+url.PathEscape(rec.ID), nil, body)
	if err != nil {
		return gateway.NewWriteError("upsert", rec.ID, err)
	}
	resp.Body.Close()
	return nil
}

// DeleteAll implements gateway.Gateway.
func (c *Client) DeleteAll(ctx context.Context, excludingID string) error {
	q := url.Values{"exclude": []string{excludingID}}
	resp, err := c.do(ctx, http.MethodDelete, "/pixels", q, nil)
	if err != nil {
		return gateway.NewWriteError("delete_all", "", err)
	}
	resp.Body.Close()
	return nil
}

// Subscribe opens the websocket change stream.
func (c *Client) Subscribe(ctx context.Context) (gateway.Subscription, error) {
	u := *c.base
	u.Path += "/changes"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.header())
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w: %s", err, readError(resp))
		}
		return nil, gateway.NewSubscriptionError("subscribe", err)
	}
	return newWSSub(conn), nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.clientID != "" {
		h.Set(ClientIDHeader, c.clientID)
	}
	return h
}

// do sends a request and returns the response when the status is 2xx. Any
// other status is turned into an error carrying the server's message.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header = c.header()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %s", method, path, readError(resp))
	}
	return resp, nil
}

// readError extracts the message from an error response.
func readError(resp *http.Response) string {
	var body errorBody
	if resp.Body != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil && body.Error != "" {
			return fmt.Sprintf("%d %s", resp.StatusCode, body.Error)
		}
	}
	return resp.Status
}

// wsSub reads Change frames from a websocket.
type wsSub struct {
	conn   *websocket.Conn
	out    chan gateway.Change
	closed chan struct{}
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func newWSSub(conn *websocket.Conn) *wsSub {
	s := &wsSub{
		conn:   conn,
		out:    make(chan gateway.Change, gateway.DefaultFeedBuffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *wsSub) run() {
	defer close(s.done)
	defer close(s.out)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}

		var ch gateway.Change
		if err := json.Unmarshal(data, &ch); err != nil || !ch.Kind.Valid() {
			slog.Warn("skipping malformed change frame", "error", err)
			continue
		}
		select {
		case s.out <- ch:
		case <-s.closed:
			return
		}
	}
}

func (s *wsSub) fail(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return
	default:
	}
	var ce *websocket.CloseError
	if errors.As(cause, &ce) && ce.Text != "" {
		cause = fmt.Errorf("relay closed stream: %s", ce.Text)
	}
	s.err = gateway.NewSubscriptionError("feed", cause)
}

func (s *wsSub) Changes() <-chan gateway.Change {
	return s.out
}

func (s *wsSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSub) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		close(s.closed)
		s.mu.Unlock()
		err = s.conn.Close()
		<-s.done
	})
	return err
}
