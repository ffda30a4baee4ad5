package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lockstep.ai/internal/protocol"
	"lockstep.ai/internal/sim/designator"
)

// Relay is a reference sequencer. Every accepted CMD gets the next global
// sequence number and is broadcast to every connected peer, sender included,
// in that single order.
type Relay struct {
	log           logrus.FieldLogger
	catalogDigest string
	sessionID     string
	readTimeout   time.Duration

	upgrader websocket.Upgrader

	mu    sync.Mutex
	seq   uint64
	peers map[string]*relayPeer
}

type relayPeer struct {
	id   string
	name string
	out  chan []byte
	kick chan struct{}
	once sync.Once
}

func (p *relayPeer) drop() { p.once.Do(func() { close(p.kick) }) }

// DefaultReadTimeout is how long the relay waits for any frame, pings
// included, before dropping a peer.
var DefaultReadTimeout = 60 * time.Second

type RelayConfig struct {
	// CatalogDigest, when set, must match the digest peers announce in HELLO.
	CatalogDigest string
	// ReadTimeout defaults to DefaultReadTimeout.
	ReadTimeout time.Duration
	Log         logrus.FieldLogger
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		cfg.Log = l
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	sessionID := uuid.NewString()
	return &Relay{
		readTimeout:   cfg.ReadTimeout,
		log:           cfg.Log.WithFields(logrus.Fields{"component": "relay", "session": sessionID}),
		catalogDigest: cfg.CatalogDigest,
		sessionID:     sessionID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		peers: map[string]*relayPeer{},
	}
}

func (r *Relay) SessionID() string { return r.sessionID }

// Seq is the last sequence number handed out.
func (r *Relay) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *Relay) Peers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Relay) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		conn, err := r.upgrader.Upgrade(rw, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		p := r.handshake(conn)
		if p == nil {
			return
		}
		defer r.leave(p)
		log := r.log.WithFields(logrus.Fields{"peer_id": p.id, "peer": p.name})
		log.Info("peer joined")

		done := make(chan struct{})
		defer close(done)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-done:
					return
				case <-p.kick:
					_ = conn.Close()
					return
				case b := <-p.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						p.drop()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Any frame from the peer, keepalive pings included, extends the
		// read deadline.
		extend := func() { _ = conn.SetReadDeadline(time.Now().Add(r.readTimeout)) }
		conn.SetPongHandler(func(string) error { extend(); return nil })
		conn.SetPingHandler(func(data string) error {
			extend()
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
			if err == websocket.ErrCloseSent {
				return nil
			}
			return err
		})

		// Reader loop.
		for {
			extend()
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCommand {
				continue
			}
			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				r.reply(p, protocol.RejectAck("", protocol.ErrProtoBadRequest, err.Error()))
				continue
			}
			r.submit(p, cmd, log)
		}
		log.Info("peer left")
	}
}

func (r *Relay) handshake(conn *websocket.Conn) *relayPeer {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.RejectAck("", protocol.ErrProtoVersion, "bad protocol_version"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	if r.catalogDigest != "" && hello.CatalogDigest != r.catalogDigest {
		_ = writeJSON(conn, protocol.RejectAck("", protocol.ErrBadRequest, "catalog digest mismatch"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "catalog digest mismatch"), time.Now().Add(time.Second))
		return nil
	}
	if hello.PeerName == "" {
		hello.PeerName = "peer"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 256
	}
	if maxQ < 16 {
		maxQ = 16
	}
	if maxQ > 4096 {
		maxQ = 4096
	}
	p := &relayPeer{
		id:   uuid.NewString(),
		name: hello.PeerName,
		out:  make(chan []byte, maxQ),
		kick: make(chan struct{}),
	}

	// Registering and reading NextSeq under one lock means the peer sees every
	// command numbered after the one its WELCOME points at.
	r.mu.Lock()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       r.sessionID,
		PeerID:          p.id,
		NextSeq:         r.seq + 1,
		CatalogDigest:   r.catalogDigest,
	}
	b, err := json.Marshal(welcome)
	if err == nil {
		p.out <- b
		r.peers[p.id] = p
	}
	r.mu.Unlock()
	if err != nil {
		return nil
	}
	return p
}

func (r *Relay) leave(p *relayPeer) {
	r.mu.Lock()
	delete(r.peers, p.id)
	r.mu.Unlock()
	p.drop()
}

func (r *Relay) submit(p *relayPeer, cmd protocol.CommandMsg, log logrus.FieldLogger) {
	if code, err := checkCommand(cmd); err != nil {
		log.WithFields(logrus.Fields{"id": cmd.ID, "code": code}).WithError(err).Warn("command rejected")
		r.reply(p, protocol.RejectAck(cmd.ID, code, err.Error()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cmd.Seq = r.seq
	cmd.PeerID = p.id
	b, err := json.Marshal(cmd)
	if err != nil {
		r.seq--
		r.replyLocked(p, protocol.RejectAck(cmd.ID, protocol.ErrInternal, err.Error()))
		return
	}
	for _, peer := range r.peers {
		select {
		case peer.out <- b:
		default:
			// A peer that misses a command can never converge again.
			log.WithField("lagging_peer", peer.id).Warn("peer queue full; disconnecting")
			peer.drop()
			delete(r.peers, peer.id)
		}
	}
	r.replyLocked(p, protocol.NewAck(cmd.ID, cmd.Seq))
	log.WithFields(logrus.Fields{"seq": cmd.Seq, "world_id": cmd.WorldID}).Debug("command sequenced")
}

func checkCommand(cmd protocol.CommandMsg) (string, error) {
	if cmd.ProtocolVersion != protocol.Version {
		return protocol.ErrProtoVersion, fmt.Errorf("bad protocol_version %q", cmd.ProtocolVersion)
	}
	if cmd.Seq != 0 {
		return protocol.ErrStale, fmt.Errorf("command already carries seq %d", cmd.Seq)
	}
	if cmd.CommandType != protocol.CommandDesignator {
		return protocol.ErrUnknownType, fmt.Errorf("unknown command type %q", cmd.CommandType)
	}
	if err := designator.ValidatePayloadJSON(cmd.Payload); err != nil {
		return protocol.ErrBadPayload, err
	}
	p, err := designator.Decode(cmd.Payload)
	if err != nil {
		return protocol.ErrBadPayload, err
	}
	if p.WorldID != cmd.WorldID {
		return protocol.ErrBadRequest, fmt.Errorf("payload world %d does not match envelope world %d", p.WorldID, cmd.WorldID)
	}
	return "", nil
}

func (r *Relay) reply(p *relayPeer, ack protocol.AckMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replyLocked(p, ack)
}

func (r *Relay) replyLocked(p *relayPeer, ack protocol.AckMsg) {
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case p.out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
