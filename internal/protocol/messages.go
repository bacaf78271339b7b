package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// Request is one decoded command. It is immutable once decoded.
type Request struct {
	Command    Command
	Text       []byte
	Original   []byte
	Nettle     []byte
	InnerBlock []byte
	TypeName   string
	Level      int
	RequestID  string
}

// Response is the outcome of one request.
type Response struct {
	Type      string
	Text      []byte
	Message   string
	Problems  []string
	Score     *int
	Errors    *int
	RequestID string
}

// OK reports whether the response is not an error response.
func (r *Response) OK() bool {
	return r.Type != ResponseTypeError
}

// NewResponse creates a successful response to cmd carrying text.
func NewResponse(cmd Command, text []byte) *Response {
	return &Response{Type: cmd.ResponseType(), Text: text}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID string, message string) *Response {
	return &Response{Type: ResponseTypeError, Message: message, RequestID: requestID}
}

// Int returns a pointer to v, for the optional numeric response fields.
func Int(v int) *int {
	return &v
}

type wireRequest struct {
	Cmd        string  `json:"cmd"`
	Text       string  `json:"text"`
	Original   *string `json:"original,omitempty"`
	Nettle     *string `json:"nettle,omitempty"`
	InnerBlock *string `json:"innerBlock,omitempty"`
	TypeName   string  `json:"typeName,omitempty"`
	Level      int     `json:"level,omitempty"`
	RequestID  string  `json:"request_id,omitempty"`
}

type wireResponse struct {
	Type      string   `json:"type"`
	Text      string   `json:"text,omitempty"`
	Message   string   `json:"message,omitempty"`
	Problems  []string `json:"problems,omitempty"`
	Score     *int     `json:"score,omitempty"`
	Errors    *int     `json:"errors,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// DecodeRequest parses one frame (with or without its delimiter) into a Request.
func DecodeRequest(frame []byte) (*Request, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, &MalformedFrameError{Reason: "empty frame"}
	}

	var w wireRequest
	if err := json.Unmarshal(frame, &w); err != nil {
		return nil, &MalformedFrameError{Reason: "invalid JSON", Err: err}
	}
	if w.Cmd == "" {
		return nil, &MalformedFrameError{Reason: "missing cmd field"}
	}

	cmd, err := ParseCommand(w.Cmd)
	if err != nil {
		return nil, &UnknownCommandError{Command: w.Cmd, RequestID: w.RequestID}
	}

	req := &Request{
		Command:   cmd,
		TypeName:  w.TypeName,
		Level:     w.Level,
		RequestID: w.RequestID,
	}

	text, err := decodePayload(w.Text)
	if err != nil {
		return nil, &InvalidPayloadError{Field: "text", RequestID: w.RequestID, Err: err}
	}
	req.Text = text

	// Optional payloads keep absent (nil) apart from present but empty.
	optional := []struct {
		name string
		src  *string
		dst  *[]byte
	}{
		{"original", w.Original, &req.Original},
		{"nettle", w.Nettle, &req.Nettle},
		{"innerBlock", w.InnerBlock, &req.InnerBlock},
	}
	for _, f := range optional {
		if f.src == nil {
			continue
		}
		decoded, err := decodePayload(*f.src)
		if err != nil {
			return nil, &InvalidPayloadError{Field: f.name, RequestID: w.RequestID, Err: err}
		}
		if decoded == nil {
			decoded = []byte{}
		}
		*f.dst = decoded
	}

	return req, nil
}

// EncodeRequest serializes req into a frame including the delimiter.
func EncodeRequest(req *Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("cannot encode nil request")
	}
	w := wireRequest{
		Cmd:        string(req.Command),
		Text:       encodePayload(req.Text),
		Original:   encodeOptional(req.Original),
		Nettle:     encodeOptional(req.Nettle),
		InnerBlock: encodeOptional(req.InnerBlock),
		TypeName:   req.TypeName,
		Level:      req.Level,
		RequestID:  req.RequestID,
	}
	return marshalFrame(&w)
}

// EncodeResponse serializes resp into a frame including the delimiter.
func EncodeResponse(resp *Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("cannot encode nil response")
	}
	w := wireResponse{
		Type:      resp.Type,
		Text:      encodePayload(resp.Text),
		Message:   resp.Message,
		Problems:  resp.Problems,
		Score:     resp.Score,
		Errors:    resp.Errors,
		RequestID: resp.RequestID,
	}
	return marshalFrame(&w)
}

// DecodeResponse parses one response frame. Empty payloads and empty problem
// lists decode as nil, so a decoded response equals the encoded one only up
// to nil versus empty.
func DecodeResponse(frame []byte) (*Response, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, &MalformedFrameError{Reason: "empty frame"}
	}

	var w wireResponse
	if err := json.Unmarshal(frame, &w); err != nil {
		return nil, &MalformedFrameError{Reason: "invalid JSON", Err: err}
	}
	if w.Type == "" {
		return nil, &MalformedFrameError{Reason: "missing type field"}
	}

	text, err := decodePayload(w.Text)
	if err != nil {
		return nil, &InvalidPayloadError{Field: "text", RequestID: w.RequestID, Err: err}
	}

	resp := &Response{
		Type:      w.Type,
		Text:      text,
		Message:   w.Message,
		Score:     w.Score,
		Errors:    w.Errors,
		RequestID: w.RequestID,
	}
	if len(w.Problems) > 0 {
		resp.Problems = w.Problems
	}
	return resp, nil
}

func marshalFrame(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return append(data, Delimiter), nil
}

func encodePayload(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

// encodeOptional leaves a nil payload out of the frame and sends an empty
// one as "".
func encodeOptional(b []byte) *string {
	if b == nil {
		return nil
	}
	s := encodePayload(b)
	return &s
}

func decodePayload(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
