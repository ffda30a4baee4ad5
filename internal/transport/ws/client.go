package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lockstep.ai/internal/protocol"
	"lockstep.ai/internal/sim/designator"
)

var (
	ErrClosed    = errors.New("ws client closed")
	ErrQueueFull = errors.New("ws client send queue full")
	ErrRejected  = errors.New("handshake rejected")
)

// DefaultPingInterval keeps an idle link well inside DefaultReadTimeout.
var DefaultPingInterval = DefaultReadTimeout / 2

type DialConfig struct {
	URL           string
	PeerName      string
	CatalogDigest string
	MaxQueue      int
	// PingInterval defaults to DefaultPingInterval. It must stay below the
	// relay's read timeout.
	PingInterval time.Duration
	Log          logrus.FieldLogger
}

// Client is the dispatch side of a peer: it sends local commands to the
// sequencer and surfaces the sequenced stream on Inbox.
type Client struct {
	conn    *websocket.Conn
	log     logrus.FieldLogger
	welcome protocol.WelcomeMsg
	ping    time.Duration

	out   chan []byte
	inbox chan protocol.CommandMsg
	acks  chan protocol.AckMsg

	ids    atomic.Uint64
	closed atomic.Bool
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Dial connects, performs HELLO/WELCOME and starts the reader and writer.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		cfg.Log = l
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PeerName:        cfg.PeerName,
		CatalogDigest:   cfg.CatalogDigest,
		MaxQueue:        cfg.MaxQueue,
	}
	if err := writeJSON(conn, hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	welcome, err := readWelcome(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		conn:    conn,
		log:     cfg.Log.WithFields(logrus.Fields{"component": "ws_client", "peer_id": welcome.PeerID}),
		welcome: welcome,
		ping:    cfg.PingInterval,
		out:     make(chan []byte, cfg.MaxQueue),
		inbox:   make(chan protocol.CommandMsg, cfg.MaxQueue),
		acks:    make(chan protocol.AckMsg, cfg.MaxQueue),
		done:    make(chan struct{}),
	}
	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

func readWelcome(conn *websocket.Conn) (protocol.WelcomeMsg, error) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.WelcomeMsg{}, err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.WelcomeMsg{}, err
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return protocol.WelcomeMsg{}, err
		}
		return w, nil
	case protocol.TypeAck:
		var ack protocol.AckMsg
		_ = json.Unmarshal(msg, &ack)
		return protocol.WelcomeMsg{}, fmt.Errorf("%w: %s %s", ErrRejected, ack.Code, ack.Message)
	}
	return protocol.WelcomeMsg{}, fmt.Errorf("%w: unexpected %q", ErrRejected, base.Type)
}

func (c *Client) Welcome() protocol.WelcomeMsg { return c.welcome }

// Inbox carries sequenced commands in sequencer order. It is closed when the
// connection ends.
func (c *Client) Inbox() <-chan protocol.CommandMsg { return c.inbox }

// Acks carries the sequencer's replies to this peer's commands. Replies are
// dropped when nobody drains it.
func (c *Client) Acks() <-chan protocol.AckMsg { return c.acks }

// SendCommand queues one command without blocking the caller.
func (c *Client) SendCommand(kind protocol.CommandType, worldID int, p designator.Payload) error {
	if c.closed.Load() {
		return ErrClosed
	}
	raw, err := designator.MarshalPayload(p)
	if err != nil {
		return err
	}
	msg := protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("%s-%d", c.welcome.PeerID, c.ids.Add(1)),
		CommandType:     kind,
		WorldID:         worldID,
		Payload:         raw,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.out <- b:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) writeLoop() {
	defer c.wg.Done()
	ping := time.NewTicker(c.ping)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.log.WithError(err).Warn("ping failed")
				return
			}
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.WithError(err).Warn("write failed")
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.inbox)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.log.WithError(err).Warn("connection lost")
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeCommand:
			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				c.log.WithError(err).Warn("bad CMD from sequencer")
				continue
			}
			select {
			case c.inbox <- cmd:
			case <-c.done:
				return
			}
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				c.log.WithFields(logrus.Fields{"ack_for": ack.AckFor, "code": ack.Code}).Warn(ack.Message)
			}
			select {
			case c.acks <- ack:
			default:
			}
		}
	}
}
