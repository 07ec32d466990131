package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// DialFeed opens a websocket connection to the backend's change stream.
func (c *Client) DialFeed(ctx context.Context) (ChangeFeed, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	target := c.baseURL.JoinPath("/api/changes")
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	values := url.Values{}
	values.Set("actor", string(c.actor))
	target.RawQuery = values.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial change feed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &wsFeed{conn: conn}, nil
}

// wsFeed reads change records off one websocket connection. Records arrive as
// JSON text messages, one per message.
type wsFeed struct {
	conn *websocket.Conn
}

func (f *wsFeed) Next(ctx context.Context) (ChangeRecord, error) {
	// gorilla reads do not take a context; cancel by forcing the read to
	// fail when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			f.conn.Close()
		case <-done:
		}
	}()

	var record ChangeRecord
	if _, data, err := f.conn.ReadMessage(); err != nil {
		if ctx.Err() != nil {
			return ChangeRecord{}, ctx.Err()
		}
		return ChangeRecord{}, fmt.Errorf("read change feed: %w", err)
	} else if err := json.Unmarshal(data, &record); err != nil {
		return ChangeRecord{}, fmt.Errorf("decode change record: %w", err)
	}
	return record, nil
}

func (f *wsFeed) Close() error {
	return f.conn.Close()
}
