// Package protocol implements the wire format spoken on the langsock socket.
//
// Every frame is a single JSON object terminated by a newline. JSON string
// escaping guarantees that a frame never contains a raw newline, so the
// delimiter marks the end of a message unambiguously:
//
//	{"cmd":"stub","text":"ZnVuY3Rpb24gZigpIHt9"}\n
//	{"type":"stubResponse","text":"ZnVuY3Rpb24gZigpOw=="}\n
//
// Source payloads (text, original, nettle, innerBlock) are standard base64 so
// that arbitrary bytes survive the JSON envelope.
//
// # Requests
//
//   - cmd: one of print, tree, stub, check, weave, usages, typecheck,
//     objectInfo, typedefGen
//   - text: the primary payload
//   - original: the uncompleted source (check)
//   - nettle, level: the source to weave in and the weaving depth (weave)
//   - innerBlock: the block whose usages are searched (usages)
//   - typeName: the placeholder type (print and typedefGen, defaults to _hole_)
//   - request_id: optional, echoed in the response
//
// An optional payload sent as "" is present and empty; one left out or sent
// as null is absent.
//
// # Responses
//
// A successful response has type "<cmd>Response" (for example stubResponse)
// and usually a base64 text field. A failed request yields
//
//	{"type":"error","message":"unknown command bogus"}
//
// Decoding never panics: malformed frames, unknown commands and undecodable
// payloads are reported as typed errors so the server can answer with an
// error response and keep the connection open.
package protocol
