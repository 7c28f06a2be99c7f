package transport

import (
	"bytes"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// Frame kinds reported to metrics.
const (
	FrameStructured = "structured"
	FrameRaw        = "raw"
)

// Frame is one inbound message.
type Frame struct {
	// Destination is the subject the frame was delivered on.
	Destination string

	Header nats.Header
	Data   []byte

	// Value is the decoded JSON payload when Structured is true, otherwise the
	// payload as a string. Numbers decode as json.Number.
	Value any

	Structured bool
}

// Kind returns FrameStructured or FrameRaw.
func (f Frame) Kind() string {
	if f.Structured {
		return FrameStructured
	}

	return FrameRaw
}

// Handler receives frames for one subscription. Frames for a subscription are
// delivered sequentially in broker order.
type Handler func(Frame)

func newFrame(msg *nats.Msg) Frame {
	f := Frame{
		Destination: msg.Subject,
		Header:      msg.Header,
		Data:        msg.Data,
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		f.Value = string(msg.Data)
		return f
	}

	f.Value = v
	f.Structured = true

	return f
}
