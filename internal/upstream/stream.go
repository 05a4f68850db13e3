package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/hai-court/courtroom-gateway/internal/session"
	"github.com/hai-court/courtroom-gateway/internal/types"
)

// Stream is the live transport adapter: one connection per session,
// push-based inbound, fire-and-forget outbound. No request ids exist on
// this protocol; correlation is purely receipt order.
type Stream struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// DialStream opens the simulation stream for a case and pumps decoded
// pushes into the session inbox until the connection dies.
func (c *Client) DialStream(parent context.Context, caseID, participantID string, sink chan<- session.Msg) (*Stream, error) {
	url := fmt.Sprintf("%s/ws/hai/%s/%s", c.wsURL, caseID, participantID)

	dialCtx, dialCancel := context.WithTimeout(parent, 15*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, url, err)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Stream{conn: conn, cancel: cancel}

	go c.readLoop(ctx, conn, caseID, sink)
	return s, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, caseID string, sink chan<- session.Msg) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Treat clean close/going-away as normal:
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				err = nil
			}
			select {
			case sink <- session.UpstreamClosed{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		var m types.UpstreamMessage
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Warnw("dropping undecodable frame", "case_id", caseID, "err", err)
			continue
		}

		switch m.Type {
		case types.UpstreamStateUpdate, types.UpstreamTurnUpdate:
			if m.Data == nil {
				c.log.Warnw("dropping push without data", "case_id", caseID, "type", m.Type)
				continue
			}
			select {
			case sink <- session.FromUpstream{Payload: m.Data}:
			case <-ctx.Done():
				return
			}
		case types.UpstreamError:
			select {
			case sink <- session.UpstreamNotice{Message: m.Message}:
			case <-ctx.Done():
				return
			}
		default:
			c.log.Warnw("dropping frame with unknown type", "case_id", caseID, "type", m.Type)
		}
	}
}

// Send is fire-and-forget; the reply, if any, arrives later on the
// inbound stream.
func (s *Stream) Send(ctx context.Context, msg types.HumanInput) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (s *Stream) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}
