package dispatch

import (
	"bytes"
	"container/list"
	"context"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/langsock/internal/protocol"
)

// CachingHandler memoises successful responses of the wrapped handler, keyed
// by a digest of the request contents. A hit also compares the stored request
// fields, so two requests with the same digest never share a response. Error
// responses are never cached.
type CachingHandler struct {
	next     Handler
	capacity int
	digest   func(*protocol.Request) uint64

	mu      sync.Mutex
	order   *list.List
	entries map[uint64]*list.Element
	hits    uint64
	misses  uint64
}

type cacheEntry struct {
	key  uint64
	req  protocol.Request
	resp protocol.Response
}

// matches reports whether req asks for the same response as the stored
// request.
func (e *cacheEntry) matches(req *protocol.Request) bool {
	return e.req.Command == req.Command &&
		e.req.TypeName == req.TypeName &&
		e.req.Level == req.Level &&
		bytes.Equal(e.req.Text, req.Text) &&
		samePayload(e.req.Original, req.Original) &&
		samePayload(e.req.Nettle, req.Nettle) &&
		samePayload(e.req.InnerBlock, req.InnerBlock)
}

// samePayload compares optional payloads. An absent payload differs from a
// present empty one.
func samePayload(a, b []byte) bool {
	return (a == nil) == (b == nil) && bytes.Equal(a, b)
}

// keyOf copies the fields of req that can influence a response.
func keyOf(req *protocol.Request) protocol.Request {
	return protocol.Request{
		Command:    req.Command,
		Text:       clonePayload(req.Text),
		Original:   clonePayload(req.Original),
		Nettle:     clonePayload(req.Nettle),
		InnerBlock: clonePayload(req.InnerBlock),
		TypeName:   req.TypeName,
		Level:      req.Level,
	}
}

func clonePayload(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// NewCachingHandler wraps h with an LRU of the given capacity. A capacity
// <= 0 returns h unchanged.
func NewCachingHandler(h Handler, capacity int) Handler {
	if capacity <= 0 {
		return h
	}
	return &CachingHandler{
		next:     h,
		capacity: capacity,
		digest:   RequestKey,
		order:    list.New(),
		entries:  make(map[uint64]*list.Element, capacity),
	}
}

// Handle serves req from the cache or from the wrapped handler.
func (c *CachingHandler) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	key := c.digest(req)

	if resp, ok := c.get(key, req); ok {
		return resp, nil
	}

	resp, err := c.next.Handle(ctx, req)
	if err != nil || resp == nil || !resp.OK() {
		return resp, err
	}
	c.put(key, req, resp)
	return resp, nil
}

// Stats returns the hit and miss counters.
func (c *CachingHandler) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached responses.
func (c *CachingHandler) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachingHandler) get(key uint64, req *protocol.Request) (*protocol.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok || !elem.Value.(*cacheEntry).matches(req) {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	resp := elem.Value.(*cacheEntry).resp
	return &resp, true
}

// put stores resp for req. A colliding entry under the same digest is
// replaced.
func (c *CachingHandler) put(key uint64, req *protocol.Request, resp *protocol.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{key: key, req: keyOf(req), resp: *resp}
	entry.resp.RequestID = ""

	if elem, ok := c.entries[key]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(entry)
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// RequestKey digests every field of req that can influence a response. An
// absent payload hashes differently from a present empty one. The request id
// is excluded.
func RequestKey(req *protocol.Request) uint64 {
	d := xxhash.New()
	var n [8]byte

	writeField := func(b []byte) {
		if b == nil {
			_, _ = d.Write([]byte{0})
			return
		}
		_, _ = d.Write([]byte{1})
		binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
		_, _ = d.Write(n[:])
		_, _ = d.Write(b)
	}

	writeField([]byte(req.Command))
	writeField(req.Text)
	writeField(req.Original)
	writeField(req.Nettle)
	writeField(req.InnerBlock)
	writeField([]byte(req.TypeName))
	binary.LittleEndian.PutUint64(n[:], uint64(int64(req.Level)))
	_, _ = d.Write(n[:])

	return d.Sum64()
}
