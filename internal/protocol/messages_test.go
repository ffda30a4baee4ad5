package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeBase_RoutesCommand(t *testing.T) {
	msg := CommandMsg{
		Type:            TypeCommand,
		ProtocolVersion: Version,
		ID:              "c1",
		CommandType:     CommandDesignator,
		WorldID:         3,
		Payload:         json.RawMessage(`{"kind":0}`),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	base, err := DecodeBase(b)
	if err != nil {
		t.Fatalf("decode base: %v", err)
	}
	if base.Type != TypeCommand || base.ProtocolVersion != Version {
		t.Fatalf("unexpected base: %+v", base)
	}
	var got CommandMsg
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.WorldID != 3 || got.CommandType != CommandDesignator || string(got.Payload) != `{"kind":0}` {
		t.Fatalf("unexpected command: %+v", got)
	}
}

func TestRejectAck_UnknownCodeBecomesInternal(t *testing.T) {
	ack := RejectAck("c1", "E_WHATEVER", "nope")
	if ack.Accepted {
		t.Fatalf("reject ack must not be accepted")
	}
	if ack.Code != ErrInternal {
		t.Fatalf("code: got %q want %q", ack.Code, ErrInternal)
	}
	ok := NewAck("c2", 9)
	if !ok.Accepted || ok.Seq != 9 || ok.Type != TypeAck {
		t.Fatalf("unexpected ack: %+v", ok)
	}
}
