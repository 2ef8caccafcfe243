package dap

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Parsed wraps exactly one of *Request, *Response, or *Event, tagged by
// Kind so a caller can switch on it without a second type assertion chain.
type Parsed struct {
	Kind     MessageType
	Request  *Request
	Response *Response
	Event    *Event
}

// Decode sniffs the "type" discriminant out of raw with gjson before
// committing to a full encoding/json unmarshal into the matching struct —
// avoids decoding into the wrong shape (e.g. trying Response fields against
// an Event body) and avoids a second full parse once the type is known.
func Decode(raw []byte) (Parsed, error) {
	typeField := gjson.GetBytes(raw, "type")
	if !typeField.Exists() {
		return Parsed{}, fmt.Errorf("dap: message missing \"type\" field")
	}

	switch MessageType(typeField.String()) {
	case TypeRequest:
		var r Request
		if err := json.Unmarshal(raw, &r); err != nil {
			return Parsed{}, fmt.Errorf("dap: decode request: %w", err)
		}
		return Parsed{Kind: TypeRequest, Request: &r}, nil
	case TypeResponse:
		var r Response
		if err := json.Unmarshal(raw, &r); err != nil {
			return Parsed{}, fmt.Errorf("dap: decode response: %w", err)
		}
		return Parsed{Kind: TypeResponse, Response: &r}, nil
	case TypeEvent:
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return Parsed{}, fmt.Errorf("dap: decode event: %w", err)
		}
		return Parsed{Kind: TypeEvent, Event: &e}, nil
	default:
		return Parsed{}, fmt.Errorf("dap: unknown message type %q", typeField.String())
	}
}
