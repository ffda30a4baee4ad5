package protocol

import "encoding/json"

// HELLO (peer -> sequencer)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PeerName        string `json:"peer_name"`
	CatalogDigest   string `json:"catalog_digest,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (sequencer -> peer)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	PeerID          string `json:"peer_id"`
	// NextSeq is the sequence number the peer should expect next.
	NextSeq       uint64 `json:"next_seq"`
	CatalogDigest string `json:"catalog_digest,omitempty"`
}

// CMD travels both ways. Peers send it with Seq=0; the sequencer stamps Seq
// and rebroadcasts it to every peer, the sender included.
type CommandMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ID              string          `json:"id,omitempty"`
	Seq             uint64          `json:"seq,omitempty"`
	CommandType     CommandType     `json:"command_type"`
	WorldID         int             `json:"world_id"`
	PeerID          string          `json:"peer_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Seq             uint64 `json:"seq,omitempty"`
}

func NewAck(ackFor string, seq uint64) AckMsg {
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: ackFor, Accepted: true, Seq: seq}
}

func RejectAck(ackFor, code, message string) AckMsg {
	if !IsKnownCode(code) {
		code = ErrInternal
	}
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: ackFor, Accepted: false, Code: code, Message: message}
}
