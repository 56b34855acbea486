package ssdp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// MulticastTransport is the concrete UDP binding for Transport: one
// socket per usable interface, joined to the SSDP multicast group via
// golang.org/x/net/ipv4.PacketConn, grounded on the multicast-join
// pattern common to SSDP implementations over golang.org/x/net/ipv4.
type MulticastTransport struct {
	logger Logger
	shared bool

	mu        sync.Mutex
	listening bool
	sockets   []*joinedSocket // one per usable interface, while listening
	closed    bool

	requestListeners  *listenerRegistry[RequestHandler]
	responseListeners *listenerRegistry[ResponseHandler]
}

type joinedSocket struct {
	iface   net.Interface
	localIP net.IP
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
}

// NewMulticastTransport constructs a Transport bound to UDP port 1900.
// logger may be nil (defaults to DefaultLogger). The transport does not
// begin listening until BeginListeningForMulticast is called.
func NewMulticastTransport(logger Logger) (*MulticastTransport, error) {
	return &MulticastTransport{
		logger:            loggerOrDefault(logger),
		requestListeners:  newListenerRegistry[RequestHandler](),
		responseListeners: newListenerRegistry[ResponseHandler](),
	}, nil
}

// NewSharedMulticastTransport is identical to NewMulticastTransport
// except IsShared reports true, so a Publisher/Locator built on top of
// it will not close the transport on Dispose.
func NewSharedMulticastTransport(logger Logger) (*MulticastTransport, error) {
	t, err := NewMulticastTransport(logger)
	if err != nil {
		return nil, err
	}
	t.shared = true
	return t, nil
}

// IsShared implements Transport.
func (t *MulticastTransport) IsShared() bool { return t.shared }

// BeginListeningForMulticast implements Transport.
func (t *MulticastTransport) BeginListeningForMulticast() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listening {
		return nil
	}
	if t.closed {
		return ErrDisposed
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("ssdp: enumerate interfaces: %w", err)
	}

	group := net.ParseIP(MulticastAddress)
	var sockets []*joinedSocket
	for _, iface := range ifaces {
		localIP := usableInterfaceAddr(iface)
		if localIP == nil {
			continue
		}

		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: MulticastPort})
		if err != nil {
			t.logger.Printf("listen on interface %s: %v", iface.Name, err)
			continue
		}
		pc := ipv4.NewPacketConn(conn)
		if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: group}); err != nil {
			t.logger.Printf("join multicast group on %s: %v", iface.Name, err)
			conn.Close()
			continue
		}
		_ = pc.SetMulticastInterface(&iface)
		_ = pc.SetMulticastTTL(4)
		_ = pc.SetControlMessage(ipv4.FlagInterface, true)

		js := &joinedSocket{iface: iface, localIP: localIP, conn: conn, pc: pc}
		sockets = append(sockets, js)
		go t.readLoop(js)
	}

	if len(sockets) == 0 {
		return fmt.Errorf("ssdp: no usable multicast interface found")
	}
	t.sockets = sockets
	t.listening = true
	return nil
}

// StopListeningForMulticast implements Transport.
func (t *MulticastTransport) StopListeningForMulticast() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *MulticastTransport) stopLocked() error {
	if !t.listening {
		return nil
	}
	for _, s := range t.sockets {
		_ = s.conn.Close()
	}
	t.sockets = nil
	t.listening = false
	return nil
}

// Close tears down the transport permanently. Safe to call more than
// once.
func (t *MulticastTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.stopLocked()
}

func (t *MulticastTransport) readLoop(js *joinedSocket) {
	buf := make([]byte, maxDatagramSize)
	for {
		_ = js.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := js.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				t.mu.Lock()
				stillOpen := t.listening
				t.mu.Unlock()
				if stillOpen {
					continue
				}
			}
			return
		}
		t.dispatch(buf[:n], src, js.localIP)
	}
}

func (t *MulticastTransport) dispatch(raw []byte, src *net.UDPAddr, localIP net.IP) {
	msg, ok := ParseMessage(raw)
	if !ok {
		return // malformed datagram: dropped silently
	}
	switch {
	case msg.IsSearchResponse():
		for _, h := range t.responseListeners.snapshot() {
			h(msg, src, localIP)
		}
	case msg.IsNotifyRequest(), msg.IsSearchRequest():
		for _, h := range t.requestListeners.snapshot() {
			h(msg, src, localIP)
		}
	}
}

// OnRequest implements Transport.
func (t *MulticastTransport) OnRequest(h RequestHandler) int { return t.requestListeners.add(h) }

// OnResponse implements Transport.
func (t *MulticastTransport) OnResponse(h ResponseHandler) int { return t.responseListeners.add(h) }

// RemoveRequestListener implements Transport.
func (t *MulticastTransport) RemoveRequestListener(token int) {
	t.requestListeners.remove(token)
}

// RemoveResponseListener implements Transport.
func (t *MulticastTransport) RemoveResponseListener(token int) {
	t.responseListeners.remove(token)
}

// SendUnicast implements Transport: a short-lived net.DialUDP per
// message, matching the per-message-connection pattern common SSDP
// responders use rather than a pooled socket.
func (t *MulticastTransport) SendUnicast(ctx context.Context, payload []byte, dest *net.UDPAddr, fromLocalIP net.IP) {
	if ctxDone(ctx) {
		return
	}
	var localAddr *net.UDPAddr
	if fromLocalIP != nil {
		localAddr = &net.UDPAddr{IP: fromLocalIP}
	}
	conn, err := net.DialUDP("udp4", localAddr, dest)
	if err != nil {
		t.logger.Printf("unicast dial to %s: %v", dest, err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		t.logger.Printf("unicast send to %s: %v", dest, err)
	}
}

// SendMulticast implements Transport.
func (t *MulticastTransport) SendMulticast(ctx context.Context, payload []byte, sendCount int, fromLocalIP net.IP) {
	if sendCount <= 0 {
		sendCount = 1
	}
	dest, err := net.ResolveUDPAddr("udp4", multicastEndpoint)
	if err != nil {
		t.logger.Printf("resolve multicast address: %v", err)
		return
	}

	t.mu.Lock()
	sockets := make([]*joinedSocket, len(t.sockets))
	copy(sockets, t.sockets)
	t.mu.Unlock()

	for _, js := range sockets {
		if fromLocalIP != nil && !js.localIP.Equal(fromLocalIP) {
			continue
		}
		for i := 0; i < sendCount; i++ {
			if ctxDone(ctx) {
				return
			}
			if _, err := js.conn.WriteToUDP(payload, dest); err != nil {
				t.logger.Printf("multicast send on %s: %v", js.iface.Name, err)
			}
		}
	}
}

func ctxDone(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// usableInterfaceAddr returns the first non-loopback IPv4 address bound
// to iface, or nil if the interface has none (down, loopback-only,
// IPv6-only).
func usableInterfaceAddr(iface net.Interface) net.IP {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
		return nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}
