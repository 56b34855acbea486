package ssdp

import (
	"context"
	"net"
	"sync"
)

// mockTransport is an in-memory Transport double: SendMulticast/
// SendUnicast record what was sent instead of touching a real socket,
// and tests drive inbound traffic by calling the handlers directly.
type mockTransport struct {
	mu sync.Mutex

	requestListeners  *listenerRegistry[RequestHandler]
	responseListeners *listenerRegistry[ResponseHandler]

	listening bool
	shared    bool

	multicastSends []sentMulticast
	unicastSends   []sentUnicast
}

type sentMulticast struct {
	payload   []byte
	sendCount int
	fromIP    net.IP
}

type sentUnicast struct {
	payload []byte
	dest    *net.UDPAddr
	fromIP  net.IP
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		requestListeners:  newListenerRegistry[RequestHandler](),
		responseListeners: newListenerRegistry[ResponseHandler](),
	}
}

func (m *mockTransport) BeginListeningForMulticast() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening = true
	return nil
}

func (m *mockTransport) StopListeningForMulticast() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening = false
	return nil
}

func (m *mockTransport) SendUnicast(ctx context.Context, payload []byte, dest *net.UDPAddr, fromLocalIP net.IP) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unicastSends = append(m.unicastSends, sentUnicast{payload: payload, dest: dest, fromIP: fromLocalIP})
}

func (m *mockTransport) SendMulticast(ctx context.Context, payload []byte, sendCount int, fromLocalIP net.IP) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.multicastSends = append(m.multicastSends, sentMulticast{payload: payload, sendCount: sendCount, fromIP: fromLocalIP})
}

func (m *mockTransport) OnRequest(h RequestHandler) int   { return m.requestListeners.add(h) }
func (m *mockTransport) OnResponse(h ResponseHandler) int { return m.responseListeners.add(h) }

func (m *mockTransport) RemoveRequestListener(token int)  { m.requestListeners.remove(token) }
func (m *mockTransport) RemoveResponseListener(token int) { m.responseListeners.remove(token) }

func (m *mockTransport) IsShared() bool { return m.shared }

func (m *mockTransport) multicastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.multicastSends)
}

func (m *mockTransport) unicastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unicastSends)
}

func (m *mockTransport) lastMulticast() sentMulticast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.multicastSends[len(m.multicastSends)-1]
}

func (m *mockTransport) lastUnicast() sentUnicast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unicastSends[len(m.unicastSends)-1]
}
