package dap

import "testing"

func TestDecodeRequest(t *testing.T) {
	p, err := Decode([]byte(`{"seq":1,"type":"request","command":"initialize","arguments":{"adapterID":"x"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Kind != TypeRequest || p.Request == nil || p.Request.Command != "initialize" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestDecodeEvent(t *testing.T) {
	p, err := Decode([]byte(`{"seq":2,"type":"event","event":"stopped","body":{"threadId":1}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Kind != TypeEvent || p.Event.Event != "stopped" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestDecodeMissingType(t *testing.T) {
	if _, err := Decode([]byte(`{"seq":1}`)); err == nil {
		t.Fatal("expected an error for a message with no type field")
	}
}
