package ssdp

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// publisherState is the Running→Disposed lifecycle; a Publisher is
// Running as soon as NewPublisher returns, and the transition is one-way.
type publisherState int

const (
	publisherRunning publisherState = iota
	publisherDisposed
)

// searchRequestRecord is the publisher-side dedup entry, keyed by
// "{searchTarget}:{remoteEndpoint}".
type searchRequestRecord struct {
	searchTarget   string
	remoteEndpoint string
	received       time.Time
}

func (r searchRequestRecord) stale(now time.Time) bool {
	return now.Sub(r.received) > searchRequestStaleAfter
}

// Publisher advertises a forest of UPnP root devices over a Transport:
// periodic alive heartbeats, M-SEARCH responses, and byebye on removal
// or shutdown.
type Publisher struct {
	transport Transport
	logger    Logger
	rng       *rand.Rand

	osName              string
	osVersion           string
	sendOnlyMatchedHost bool

	registryMu sync.Mutex
	registry   []*RootDevice

	searchMu     sync.Mutex
	recentSearch map[string]searchRequestRecord

	timerMu   sync.Mutex
	heartbeat *time.Timer

	stateMu      sync.Mutex
	state        publisherState
	requestToken int
}

// NewPublisher constructs a Publisher bound to transport. It begins
// multicast listening and emits one full alive sweep immediately
// (there may be zero registered devices, so the initial sweep is a
// no-op until AddDevice is called), matching the common
// "advertise on construction" behavior.
//
// osName and osVersion feed the SERVER header and must be non-empty.
func NewPublisher(transport Transport, osName, osVersion string, sendOnlyMatchedHost bool) (*Publisher, error) {
	if osName == "" {
		return nil, ErrEmptyOSName
	}
	if osVersion == "" {
		return nil, ErrEmptyOSVersion
	}

	p := &Publisher{
		transport:           transport,
		logger:              DefaultLogger{},
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
		osName:              osName,
		osVersion:           osVersion,
		sendOnlyMatchedHost: sendOnlyMatchedHost,
		recentSearch:        make(map[string]searchRequestRecord),
	}

	p.requestToken = transport.OnRequest(p.handleRequest)
	if err := transport.BeginListeningForMulticast(); err != nil {
		return nil, fmt.Errorf("ssdp: publisher: %w", err)
	}
	p.sendAliveSweep(context.Background(), nil)
	return p, nil
}

// SetLogger overrides the default logger.
func (p *Publisher) SetLogger(l Logger) { p.logger = loggerOrDefault(l) }

func (p *Publisher) disposed() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state == publisherDisposed
}

// AddDevice registers root, idempotent by identity. A successful
// addition immediately triggers one alive sweep for that device.
func (p *Publisher) AddDevice(root *RootDevice) error {
	if p.disposed() {
		return ErrDisposed
	}
	if root == nil {
		return ErrNilDevice
	}

	p.registryMu.Lock()
	for _, existing := range p.registry {
		if existing == root {
			p.registryMu.Unlock()
			return nil
		}
	}
	p.registry = append(p.registry, root)
	p.registryMu.Unlock()

	p.sendAliveSweep(context.Background(), root)
	return nil
}

// RemoveDevice unregisters root, idempotent. A successful removal
// triggers a byebye sweep (sendCount=3) before the device is dropped.
func (p *Publisher) RemoveDevice(root *RootDevice) error {
	if p.disposed() {
		return ErrDisposed
	}

	p.registryMu.Lock()
	idx := -1
	for i, existing := range p.registry {
		if existing == root {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.registryMu.Unlock()
		return nil
	}
	p.registry = append(p.registry[:idx], p.registry[idx+1:]...)
	p.registryMu.Unlock()

	p.sendByebyeSweep(context.Background(), root, byebyeSendCount)
	return nil
}

// StartSendingAliveNotifications arms the heartbeat timer: first fire
// at +5s, then every interval. Each tick re-advertises every registered
// device. Ticks observed after disposal are dropped.
func (p *Publisher) StartSendingAliveNotifications(interval time.Duration) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()

	if p.heartbeat != nil {
		p.heartbeat.Stop()
	}
	var tick func()
	tick = func() {
		if p.disposed() {
			return
		}
		p.sendAliveSweep(context.Background(), nil)
		p.timerMu.Lock()
		p.heartbeat = time.AfterFunc(interval, tick)
		p.timerMu.Unlock()
	}
	p.heartbeat = time.AfterFunc(aliveHeartbeatFirstFire, tick)
}

// sendAliveSweep advertises one device (if non-nil) or the whole
// registry (if nil), pairing alive/byebye notifications consistently.
func (p *Publisher) sendAliveSweep(ctx context.Context, only *RootDevice) {
	roots := p.snapshotRegistry(only)
	for _, root := range roots {
		for _, pair := range enumerate(root) {
			p.sendNotify(ctx, root, pair, "ssdp:alive", aliveSendCount)
		}
	}
}

// sendByebyeSweep mirrors sendAliveSweep's pairs with NTS:ssdp:byebye.
func (p *Publisher) sendByebyeSweep(ctx context.Context, only *RootDevice, sendCount int) {
	roots := p.snapshotRegistry(only)
	for _, root := range roots {
		for _, pair := range enumerate(root) {
			p.sendNotify(ctx, root, pair, "ssdp:byebye", sendCount)
		}
	}
}

func (p *Publisher) snapshotRegistry(only *RootDevice) []*RootDevice {
	if only != nil {
		return []*RootDevice{only}
	}
	p.registryMu.Lock()
	defer p.registryMu.Unlock()
	out := make([]*RootDevice, len(p.registry))
	copy(out, p.registry)
	return out
}

func (p *Publisher) sendNotify(ctx context.Context, root *RootDevice, pair enumeratedPair, nts string, sendCount int) {
	headers := map[string]string{
		"HOST": multicastEndpoint,
		"NT":   pair.NTorST,
		"NTS":  nts,
		"USN":  pair.USN,
	}
	if nts == "ssdp:alive" {
		headers["LOCATION"] = root.Location
		headers["CACHE-CONTROL"] = maxAgeHeader(int(root.CacheLifetime.Seconds()))
		headers["SERVER"] = serverHeader(p.osName, p.osVersion)
	}
	msg := buildNotify(headers)
	p.transport.SendMulticast(ctx, msg, sendCount, nil)
}

// handleRequest implements the M-SEARCH state machine. NOTIFY requests
// observed here (a publisher may share a Transport with a Locator) are
// ignored.
func (p *Publisher) handleRequest(msg *Message, from *net.UDPAddr, localIP net.IP) {
	if p.disposed() || !msg.IsSearchRequest() {
		return
	}

	st, hasST := msg.Header("ST")
	if !hasST || st == "" {
		p.logger.Printf("M-SEARCH missing ST from %s, dropping", from)
		return
	}

	if p.isDuplicateSearch(st, from.String()) {
		return
	}

	mx, ok := p.resolveMX(msg.HeaderOr("MX", ""))
	if !ok {
		return
	}

	delay := minResponseDelay
	if span := int64(mx)*1000 - minResponseDelay.Milliseconds(); span > 0 {
		delay = time.Duration(minResponseDelay.Milliseconds()+p.rng.Int63n(span)) * time.Millisecond
	}
	time.AfterFunc(delay, func() {
		p.respondToSearch(context.Background(), st, from, localIP)
	})
}

// isDuplicateSearch applies a dedup window: a
// prior, non-stale record for the same (ST, endpoint) key suppresses
// the response. The map is swept for stale entries only once it grows
// past searchRequestSweepThreshold — a bounded-leak tradeoff, flagged
// rather than fixed (see DESIGN.md).
func (p *Publisher) isDuplicateSearch(st, endpoint string) bool {
	key := st + ":" + endpoint
	now := time.Now()

	p.searchMu.Lock()
	defer p.searchMu.Unlock()

	if existing, ok := p.recentSearch[key]; ok && !existing.stale(now) {
		return true
	}
	p.recentSearch[key] = searchRequestRecord{searchTarget: st, remoteEndpoint: endpoint, received: now}

	if len(p.recentSearch) > searchRequestSweepThreshold {
		for k, rec := range p.recentSearch {
			if rec.stale(now) {
				delete(p.recentSearch, k)
			}
		}
	}
	return false
}

// resolveMX implements the MX parsing and clamping rules.
func (p *Publisher) resolveMX(raw string) (seconds int, ok bool) {
	if raw == "" {
		return 1, true
	}
	n, err := parsePositiveInt(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxMX {
		n = p.rng.Intn(maxMX)
	}
	return n, true
}

// respondToSearch applies the ST match rules and fans out one unicast
// response per matched pair without interleaving partial bursts,
// under a single registry snapshot taken and released before any I/O.
func (p *Publisher) respondToSearch(ctx context.Context, st string, from *net.UDPAddr, localIP net.IP) {
	p.registryMu.Lock()
	roots := make([]*RootDevice, len(p.registry))
	copy(roots, p.registry)
	p.registryMu.Unlock()

	for _, root := range roots {
		if p.sendOnlyMatchedHost && !root.Address.Equal(localIP) {
			continue
		}
		for _, pair := range matchSearchTarget(root, st) {
			p.sendSearchResponse(ctx, root, pair, from, localIP)
		}
	}
}

func (p *Publisher) sendSearchResponse(ctx context.Context, root *RootDevice, pair enumeratedPair, dest *net.UDPAddr, localIP net.IP) {
	headers := map[string]string{
		"EXT":           "",
		"DATE":          time.Now().UTC().Format(time.RFC1123),
		"HOST":          multicastEndpoint,
		"CACHE-CONTROL": maxAgeHeader(int(root.CacheLifetime.Seconds())),
		"ST":            pair.NTorST,
		"SERVER":        serverHeader(p.osName, p.osVersion),
		"USN":           pair.USN,
		"LOCATION":      root.Location,
	}
	msg := buildSearchResponse(headers)
	p.transport.SendUnicast(ctx, msg, dest, localIP)
}

// matchSearchTarget implements ST matching,
// returning the pairs of root that the response fan-out iterates.
func matchSearchTarget(root *RootDevice, st string) []enumeratedPair {
	switch {
	case st == "ssdp:all":
		return enumerate(root)
	case st == "upnp:rootdevice":
		return []enumeratedPair{{st, root.UDN() + "::upnp:rootdevice"}}
	case st == "pnp:rootdevice" && root.SupportPnpRootDevice:
		return []enumeratedPair{{st, root.UDN() + "::pnp:rootdevice"}}
	case strings.HasPrefix(strings.ToLower(st), "uuid:"), strings.HasPrefix(strings.ToLower(st), "urn:"):
		var pairs []enumeratedPair
		for _, d := range flattenDevices(root) {
			if !deviceMatchesURNOrUUID(d, st) {
				continue
			}
			if strings.HasPrefix(strings.ToLower(st), "uuid:") {
				pairs = append(pairs, enumeratedPair{d.UDN(), d.UDN()})
			} else {
				pairs = append(pairs, enumeratedPair{st, d.UDN() + "::" + st})
			}
		}
		return pairs
	default:
		return nil
	}
}

func parsePositiveInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// Dispose stops the heartbeat, unsubscribes from request events, runs a
// byebye sweep (sendCount=1) for every registered device to completion,
// and — unless the Transport is shared — releases it. Any non-
// observational operation after Dispose fails with ErrDisposed;
// inbound events observed after disposal are silently dropped.
func (p *Publisher) Dispose() {
	p.stateMu.Lock()
	if p.state == publisherDisposed {
		p.stateMu.Unlock()
		return
	}
	p.state = publisherDisposed
	p.stateMu.Unlock()

	p.timerMu.Lock()
	if p.heartbeat != nil {
		p.heartbeat.Stop()
		p.heartbeat = nil
	}
	p.timerMu.Unlock()

	p.transport.RemoveRequestListener(p.requestToken)

	p.registryMu.Lock()
	roots := make([]*RootDevice, len(p.registry))
	copy(roots, p.registry)
	p.registryMu.Unlock()

	for _, root := range roots {
		p.sendByebyeSweep(context.Background(), root, shutdownByebyeSendCount)
	}

	if !p.transport.IsShared() {
		if closer, ok := p.transport.(*MulticastTransport); ok {
			_ = closer.Close()
		} else {
			_ = p.transport.StopListeningForMulticast()
		}
	}
}
