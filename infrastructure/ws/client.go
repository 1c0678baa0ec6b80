package ws

import (
	"context"
	"log/slog"
	"orchestra/domain/meeting"
	"orchestra/observability"
	"orchestra/services"
	"orchestra/sink"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Rejections waiting for the writer.
	repliesSize = 16
)

// Client is one websocket connection bound to a room.
// ReadPump is the only reader and WritePump the only writer.
type Client struct {
	log        *slog.Logger
	conn       *websocket.Conn
	service    services.IMeetingService
	monitoring *observability.MonitoringManager

	// sink receives the room events addressed to this connection.
	sink *sink.ConnectionSink
	// replies carries the rejections of the actions sent on this connection.
	replies chan OutboundFrame

	roomID     meeting.RoomID
	caller     meeting.Caller
	credential string

	writeWait      time.Duration
	maxMessageSize int64
}

func NewClient(log *slog.Logger,
	conn *websocket.Conn,
	service services.IMeetingService,
	monitoring *observability.MonitoringManager,
	roomID meeting.RoomID,
	caller meeting.Caller,
	credential string,
	cfg Config) *Client {
	return &Client{
		log:            log.With("room_id", roomID, "participant_id", caller.ParticipantID),
		conn:           conn,
		service:        service,
		monitoring:     monitoring,
		sink:           sink.NewConnectionSink(cfg.ConnectionBufferSize),
		replies:        make(chan OutboundFrame, repliesSize),
		roomID:         roomID,
		caller:         caller,
		credential:     credential,
		writeWait:      cfg.DeliveryTimeout,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// ReadPump decodes every frame into a command and hands it to the service.
// On exit the participant is disconnected from the room, unless another
// connection replaced this one in the meantime.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.service.Disconnect(context.WithoutCancel(ctx), c.roomID, c.caller.ParticipantID, c.sink)
		c.sink.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("Connection closed unexpectedly", "error", err)
			}
			return
		}
		c.incr(func(m *observability.MonitoringManager) { m.IncrFramesReceived() })

		cmd, requestID, err := Decode(data)
		if err == nil {
			err = c.service.Handle(ctx, c.credential, c.roomID, c.sink, cmd)
		}
		if err != nil {
			c.reject(requestID, err)
		}
	}
}

func (c *Client) reject(requestID string, err error) {
	c.log.Debug("Action rejected", "request_id", requestID, "error", err)
	c.incr(func(m *observability.MonitoringManager) { m.IncrRejectedActions() })
	select {
	case c.replies <- ErrorFrame(requestID, err):
	default:
		c.log.Warn("Rejection dropped, writer is behind", "request_id", requestID)
	}
}

// WritePump writes room events and rejections in the order they were queued.
// It stops once the sink is closed, which happens on eviction, on replacement
// by a newer connection and when ReadPump exits.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt := <-c.sink.Events():
			frame, ok := Encode(evt, c.caller.ParticipantID)
			if !ok {
				continue
			}
			if err := c.write(frame); err != nil {
				c.log.Warn("Failed to write frame", "error", err)
				return
			}
		case frame := <-c.replies:
			if err := c.write(frame); err != nil {
				c.log.Warn("Failed to write rejection", "error", err)
				return
			}
		case <-c.sink.Done():
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "connection closed by room"))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(frame OutboundFrame) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		return err
	}
	c.incr(func(m *observability.MonitoringManager) { m.IncrFramesSent() })
	return nil
}

func (c *Client) incr(fn func(*observability.MonitoringManager)) {
	if c.monitoring != nil {
		fn(c.monitoring)
	}
}
