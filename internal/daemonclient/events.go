package daemonclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"batchcursor/internal/observer"
)

// EventStream yields progress events from the daemon's websocket hub.
type EventStream struct {
	conn *websocket.Conn
}

// Events connects to the daemon's progress stream.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	endpoint := c.baseURL + "/api/events"
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	headers := http.Header{}
	headers.Set("User-Agent", userAgent)
	c.authorize(headers)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		if isUnavailable(err) {
			return nil, fmt.Errorf("%w at %s", ErrUnavailable, c.baseURL)
		}
		return nil, fmt.Errorf("dial events: %w", err)
	}
	return &EventStream{conn: conn}, nil
}

// Next blocks until the next event arrives or the connection closes.
func (s *EventStream) Next() (observer.Event, error) {
	var evt observer.Event
	if err := s.conn.ReadJSON(&evt); err != nil {
		return observer.Event{}, err
	}
	return evt, nil
}

// Close terminates the stream.
func (s *EventStream) Close() error {
	return s.conn.Close()
}
