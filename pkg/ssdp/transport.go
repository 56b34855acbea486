package ssdp

import (
	"context"
	"net"
	"sync"
)

// RequestHandler is invoked for every inbound NOTIFY/M-SEARCH request
// datagram. localIP is the interface address the datagram arrived on.
type RequestHandler func(msg *Message, from *net.UDPAddr, localIP net.IP)

// ResponseHandler is invoked for every inbound "HTTP/1.1 200 OK" search
// response datagram.
type ResponseHandler func(msg *Message, from *net.UDPAddr, localIP net.IP)

// Transport is the communications-server contract Publisher and Locator
// consume. A concrete UDP binding
// (MulticastTransport) is shipped alongside it, but neither Publisher
// nor Locator import that type directly — they're built against this
// interface so an embedder can substitute a test double or an
// alternative socket layer.
type Transport interface {
	// BeginListeningForMulticast joins the SSDP multicast group on
	// every usable local interface. Idempotent.
	BeginListeningForMulticast() error
	// StopListeningForMulticast leaves the multicast group. Idempotent.
	StopListeningForMulticast() error

	// SendUnicast is fire-and-forget; errors are logged, never
	// returned to the caller's caller. Cancelling ctx aborts an
	// in-flight send promptly; partial sends are permitted.
	SendUnicast(ctx context.Context, payload []byte, dest *net.UDPAddr, fromLocalIP net.IP)
	// SendMulticast transmits sendCount copies of payload to the SSDP
	// multicast group. If fromLocalIP is nil, it sends from every
	// listening interface.
	SendMulticast(ctx context.Context, payload []byte, sendCount int, fromLocalIP net.IP)

	// OnRequest/OnResponse register a listener and return a token that
	// RemoveRequestListener/RemoveResponseListener can use to
	// unsubscribe. Multiple listeners may be registered concurrently
	// (Publisher and Locator commonly share one Transport instance).
	OnRequest(h RequestHandler) (token int)
	OnResponse(h ResponseHandler) (token int)
	RemoveRequestListener(token int)
	RemoveResponseListener(token int)

	// IsShared reports whether this Transport is owned by more than
	// one Publisher/Locator; when true, a Publisher's or Locator's
	// Dispose leaves the transport open and the owner's Close must be
	// called explicitly.
	IsShared() bool
}

// listenerRegistry is the thread-safe subscribe/unsubscribe helper
// shared by request and response listener sets, modeled on the
// mutex-guarded registration pattern used by a WebSocket client.
type listenerRegistry[H any] struct {
	mu        sync.RWMutex
	nextToken int
	listeners map[int]H
}

func newListenerRegistry[H any]() *listenerRegistry[H] {
	return &listenerRegistry[H]{listeners: make(map[int]H)}
}

func (r *listenerRegistry[H]) add(h H) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextToken++
	token := r.nextToken
	r.listeners[token] = h
	return token
}

func (r *listenerRegistry[H]) remove(token int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, token)
}

func (r *listenerRegistry[H]) snapshot() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]H, 0, len(r.listeners))
	for _, h := range r.listeners {
		out = append(out, h)
	}
	return out
}
