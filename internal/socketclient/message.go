package socketclient

import (
	"github.com/google/uuid"

	"github.com/codefionn/langsock/internal/protocol"
)

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return uuid.New().String()
}

// NewRequest creates a request for cmd with a fresh request id.
func NewRequest(cmd protocol.Command, text []byte) *protocol.Request {
	return &protocol.Request{
		Command:   cmd,
		Text:      text,
		RequestID: NewRequestID(),
	}
}

// NewCheckRequest creates a check request comparing text with original.
func NewCheckRequest(text, original []byte) *protocol.Request {
	req := NewRequest(protocol.CommandCheck, text)
	req.Original = original
	return req
}

// NewWeaveRequest creates a weave request copying annotations from nettle.
func NewWeaveRequest(text, nettle []byte, level int) *protocol.Request {
	req := NewRequest(protocol.CommandWeave, text)
	req.Nettle = nettle
	req.Level = level
	return req
}

// NewUsagesRequest creates a usages request for innerBlock inside text.
func NewUsagesRequest(text, innerBlock []byte) *protocol.Request {
	req := NewRequest(protocol.CommandUsages, text)
	req.InnerBlock = innerBlock
	return req
}
