package simtest

import (
	"fmt"

	"lockstep.ai/internal/protocol"
	"lockstep.ai/internal/sim/designator"
)

// Sequencer is a loopback stand-in for the network: every sent command gets
// the next sequence number and is delivered to every subscriber in that
// order, the sender included.
type Sequencer struct {
	seq  uint64
	subs []chan protocol.CommandMsg
	held []protocol.CommandMsg
	Sent []protocol.CommandMsg
	// Hold queues commands without delivering them until Release.
	Hold bool
}

func NewSequencer() *Sequencer { return &Sequencer{} }

func (q *Sequencer) Subscribe() <-chan protocol.CommandMsg {
	ch := make(chan protocol.CommandMsg, 1024)
	q.subs = append(q.subs, ch)
	return ch
}

// NextSeq is the sequence number the next command will carry.
func (q *Sequencer) NextSeq() uint64 { return q.seq + 1 }

// Release delivers every held command.
func (q *Sequencer) Release() {
	q.Hold = false
	for _, msg := range q.held {
		q.deliver(msg)
	}
	q.held = nil
}

func (q *Sequencer) Dispatcher(peerID string) *PeerDispatcher {
	return &PeerDispatcher{q: q, peerID: peerID}
}

func (q *Sequencer) deliver(msg protocol.CommandMsg) {
	for _, ch := range q.subs {
		ch <- msg
	}
}

// PeerDispatcher implements intercept.Dispatcher for one peer.
type PeerDispatcher struct {
	q      *Sequencer
	peerID string
	Calls  int
}

func (d *PeerDispatcher) SendCommand(kind protocol.CommandType, worldID int, p designator.Payload) error {
	raw, err := designator.MarshalPayload(p)
	if err != nil {
		return err
	}
	d.Calls++
	d.q.seq++
	msg := protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("%s-%d", d.peerID, d.Calls),
		Seq:             d.q.seq,
		CommandType:     kind,
		WorldID:         worldID,
		PeerID:          d.peerID,
		Payload:         raw,
	}
	d.q.Sent = append(d.q.Sent, msg)
	if d.q.Hold {
		d.q.held = append(d.q.held, msg)
		return nil
	}
	d.q.deliver(msg)
	return nil
}
