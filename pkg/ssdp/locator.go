package ssdp

import (
	"context"
	"net"
	"sync"
	"time"
)

// DiscoveredDevice is the locator-side cache entry for one discovered
// advertisement.
type DiscoveredDevice struct {
	NotificationType    string
	USN                 string
	DescriptionLocation string
	CacheLifetime       time.Duration
	AsAt                time.Time
	ResponseHeaders     map[string]string
}

// IsExpired reports whether the entry's cache lifetime has elapsed.
func (d *DiscoveredDevice) IsExpired(now time.Time) bool {
	return d.CacheLifetime == 0 || !d.AsAt.Add(d.CacheLifetime).After(now)
}

func (d *DiscoveredDevice) cacheKey() string { return d.NotificationType + "\x00" + d.USN }

// DeviceAvailableHandler and DeviceUnavailableHandler are the events a
// Locator publishes, as plain callback fields.
type DeviceAvailableHandler func(d *DiscoveredDevice, isNewlyDiscovered bool, remoteIP net.IP)
type DeviceUnavailableHandler func(d *DiscoveredDevice, expired bool)

// LocatorListener groups the event callbacks a caller wires up; any
// field left nil is simply not invoked.
type LocatorListener struct {
	OnDeviceAvailable   DeviceAvailableHandler
	OnDeviceUnavailable DeviceUnavailableHandler
}

// Locator discovers UPnP devices: issuing M-SEARCH, listening for
// NOTIFY, and maintaining a TTL-bounded cache.
type Locator struct {
	transport Transport
	logger    Logger
	Listener  LocatorListener

	osName    string
	osVersion string

	// NotificationFilter restricts which events Listener receives;
	// the cache itself is always populated regardless of the filter.
	NotificationFilter string

	cacheMu sync.Mutex
	cache   map[string]*DiscoveredDevice

	subMu           sync.Mutex
	responseToken   int
	requestToken    int
	listeningNotify bool

	timerMu sync.Mutex
	timer   *time.Timer

	disposedMu sync.Mutex
	disposed   bool
}

// NewLocator constructs a Locator bound to transport and subscribes to
// search responses immediately.
func NewLocator(transport Transport, osName, osVersion string) (*Locator, error) {
	if osName == "" {
		return nil, ErrEmptyOSName
	}
	if osVersion == "" {
		return nil, ErrEmptyOSVersion
	}

	l := &Locator{
		transport: transport,
		logger:    DefaultLogger{},
		osName:    osName,
		osVersion: osVersion,
		cache:     make(map[string]*DiscoveredDevice),
	}
	l.responseToken = transport.OnResponse(l.handleResponse)
	return l, nil
}

// SetLogger overrides the default logger.
func (l *Locator) SetLogger(lg Logger) { l.logger = loggerOrDefault(lg) }

func (l *Locator) isDisposed() bool {
	l.disposedMu.Lock()
	defer l.disposedMu.Unlock()
	return l.disposed
}

// StartListeningForNotifications subscribes to inbound NOTIFY requests
// (idempotent: unsubscribe then resubscribe) and ensures multicast
// listening is active.
func (l *Locator) StartListeningForNotifications() error {
	if l.isDisposed() {
		return ErrDisposed
	}

	l.subMu.Lock()
	if l.listeningNotify {
		l.transport.RemoveRequestListener(l.requestToken)
	}
	l.requestToken = l.transport.OnRequest(l.handleNotify)
	l.listeningNotify = true
	l.subMu.Unlock()

	return l.transport.BeginListeningForMulticast()
}

// StopListeningForNotifications unsubscribes from inbound NOTIFY
// requests only; multicast listening (needed for search responses)
// continues.
func (l *Locator) StopListeningForNotifications() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	if l.listeningNotify {
		l.transport.RemoveRequestListener(l.requestToken)
		l.listeningNotify = false
	}
}

// restartBroadcastTimer arms (or reschedules in place) the periodic
// search timer. Each tick — guarded by !disposed — ensures notification
// listening is active, sweeps expired entries, then issues a default
// search.
func (l *Locator) restartBroadcastTimer(dueTime, period time.Duration) {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}

	var tick func()
	tick = func() {
		if l.isDisposed() {
			return
		}
		_ = l.StartListeningForNotifications()
		l.SweepExpired()
		_ = l.SearchAsync(context.Background(), "ssdp:all", 0, nil)

		l.timerMu.Lock()
		l.timer = time.AfterFunc(period, tick)
		l.timerMu.Unlock()
	}
	l.timer = time.AfterFunc(dueTime, tick)
}

// StartPeriodicSearch is the exported entry point for
// restartBroadcastTimer, arming a recurring default search.
func (l *Locator) StartPeriodicSearch(dueTime, period time.Duration) {
	l.restartBroadcastTimer(dueTime, period)
}

// SearchAsync issues one M-SEARCH multicast for target.
//
// waitTime must be 0 or greater than 1s. The waitTime→MX conversion
// (toMX) is computed but, matching the upstream BroadcastDiscoverMessage
// behavior, the constructed request always carries ST: ssdp:all and
// MX: 3 regardless of target/waitTime — see DESIGN.md "open question"
// #2 for the recorded decision.
func (l *Locator) SearchAsync(ctx context.Context, target string, waitTime time.Duration, cancel <-chan struct{}) error {
	if l.isDisposed() {
		return ErrDisposed
	}
	if target == "" {
		return ErrEmptySearchTarget
	}
	if waitTime != 0 && waitTime <= time.Second {
		return ErrInvalidSearchWaitTime
	}
	_ = toMX(waitTime) // computed, intentionally unused below; see doc comment

	headers := map[string]string{
		"HOST":       multicastEndpoint,
		"USER-AGENT": userAgentHeader(l.osName, l.osVersion),
		"MAN":        `"ssdp:discover"`,
		"ST":         "ssdp:all",
		"MX":         "3",
	}
	msg := buildSearchRequest(headers)
	l.transport.SendMulticast(ctx, msg, 1, nil)
	return nil
}

// toMX converts a SearchAsync waitTime into an MX seconds value:
// waitTime < 2s or == 0 -> 1s; else waitTime - 1s.
func toMX(waitTime time.Duration) int {
	if waitTime == 0 || waitTime < 2*time.Second {
		return 1
	}
	return int((waitTime - time.Second).Seconds())
}

// handleResponse ingests an "HTTP/1.1 200 OK" search response.
func (l *Locator) handleResponse(msg *Message, from *net.UDPAddr, localIP net.IP) {
	if l.isDisposed() {
		return
	}
	location, ok := msg.Header("LOCATION")
	if !ok || location == "" {
		return
	}
	nt := msg.HeaderOr("ST", "")
	usn := msg.HeaderOr("USN", "")

	device := l.buildDiscovered(nt, usn, location, msg)
	isNew := l.upsert(device)
	l.emitAvailable(device, isNew, from.IP)
}

// handleNotify dispatches an inbound "NOTIFY * HTTP/1.1" on NTS.
func (l *Locator) handleNotify(msg *Message, from *net.UDPAddr, localIP net.IP) {
	if l.isDisposed() || !msg.IsNotifyRequest() {
		return
	}
	nts := msg.HeaderOr("NTS", "")
	switch nts {
	case "ssdp:alive":
		l.handleAlive(msg, from)
	case "ssdp:byebye":
		l.handleByebye(msg)
	}
}

func (l *Locator) handleAlive(msg *Message, from *net.UDPAddr) {
	location, ok := msg.Header("LOCATION")
	if !ok || location == "" {
		return
	}
	nt := msg.HeaderOr("NT", "")
	usn := msg.HeaderOr("USN", "")

	device := l.buildDiscovered(nt, usn, location, msg)
	isNew := l.upsert(device)
	l.emitAvailable(device, isNew, from.IP)
}

func (l *Locator) handleByebye(msg *Message) {
	nt := msg.HeaderOr("NT", "")
	if nt == "" {
		return
	}
	usn := msg.HeaderOr("USN", "")
	if usn == "" {
		return
	}

	removed := l.removeByUSN(usn)
	if len(removed) == 0 {
		synth := &DiscoveredDevice{
			AsAt:             time.Now(),
			CacheLifetime:    0,
			NotificationType: nt,
			USN:              usn,
			ResponseHeaders:  headerSnapshot(msg),
		}
		l.emitUnavailable(synth, false)
		return
	}
	for _, d := range removed {
		l.emitUnavailable(d, false)
	}
}

func (l *Locator) buildDiscovered(nt, usn, location string, msg *Message) *DiscoveredDevice {
	cacheLifetime := time.Duration(0)
	if cc, ok := msg.Header("CACHE-CONTROL"); ok {
		if seconds, ok := parseMaxAge(cc); ok {
			cacheLifetime = time.Duration(seconds) * time.Second
		}
	}
	return &DiscoveredDevice{
		NotificationType:    nt,
		USN:                 usn,
		DescriptionLocation: location,
		CacheLifetime:       cacheLifetime,
		AsAt:                time.Now(),
		ResponseHeaders:     headerSnapshot(msg),
	}
}

func headerSnapshot(msg *Message) map[string]string {
	out := make(map[string]string, len(msg.headers))
	for k, v := range msg.headers {
		out[k] = v
	}
	return out
}

// upsert implements the cache uniqueness invariant: at most one entry
// per (notificationType, usn), newer writes superseding older ones. It
// returns true when the key was not previously present.
func (l *Locator) upsert(d *DiscoveredDevice) bool {
	key := d.cacheKey()

	l.cacheMu.Lock()
	_, existed := l.cache[key]
	l.cache[key] = d
	l.cacheMu.Unlock()

	return !existed
}

// removeByUSN deletes every cache entry sharing usn and returns them,
// implementing the byebye fan-out.
func (l *Locator) removeByUSN(usn string) []*DiscoveredDevice {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	var removed []*DiscoveredDevice
	for key, d := range l.cache {
		if d.USN == usn {
			removed = append(removed, d)
			delete(l.cache, key)
		}
	}
	return removed
}

// matchesFilter implements the notification filter:
// null/empty, "ssdp:all", or an exact notificationType match.
func (l *Locator) matchesFilter(notificationType string) bool {
	f := l.NotificationFilter
	return f == "" || f == "ssdp:all" || f == notificationType
}

func (l *Locator) emitAvailable(d *DiscoveredDevice, isNew bool, remoteIP net.IP) {
	if !l.matchesFilter(d.NotificationType) {
		return
	}
	if h := l.Listener.OnDeviceAvailable; h != nil {
		h(d, isNew, remoteIP)
	}
}

func (l *Locator) emitUnavailable(d *DiscoveredDevice, expired bool) {
	if !l.matchesFilter(d.NotificationType) {
		return
	}
	if h := l.Listener.OnDeviceUnavailable; h != nil {
		h(d, expired)
	}
}

// SweepExpired removes expired cache entries and emits
// deviceUnavailable(expired=true) for each filter-matching removal,
// grouped by USN so a handler re-entering the locator cannot deadlock
// on the cache mutex: snapshot under lock, emit outside it.
func (l *Locator) SweepExpired() {
	now := time.Now()

	l.cacheMu.Lock()
	var expired []*DiscoveredDevice
	for key, d := range l.cache {
		if d.IsExpired(now) {
			expired = append(expired, d)
			delete(l.cache, key)
		}
	}
	l.cacheMu.Unlock()

	byUSN := make(map[string][]*DiscoveredDevice)
	var order []string
	for _, d := range expired {
		if _, seen := byUSN[d.USN]; !seen {
			order = append(order, d.USN)
		}
		byUSN[d.USN] = append(byUSN[d.USN], d)
	}
	for _, usn := range order {
		for _, d := range byUSN[usn] {
			l.emitUnavailable(d, true)
		}
	}
}

// Snapshot returns every non-expired cache entry, for introspection
// (e.g. cmd/ssdpd's /devices endpoint).
func (l *Locator) Snapshot() []*DiscoveredDevice {
	now := time.Now()
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	out := make([]*DiscoveredDevice, 0, len(l.cache))
	for _, d := range l.cache {
		if !d.IsExpired(now) {
			out = append(out, d)
		}
	}
	return out
}

// Dispose stops the periodic search timer, unsubscribes from both
// request and response events, and — unless the Transport is shared —
// releases it. Safe to call more than once.
func (l *Locator) Dispose() {
	l.disposedMu.Lock()
	if l.disposed {
		l.disposedMu.Unlock()
		return
	}
	l.disposed = true
	l.disposedMu.Unlock()

	l.timerMu.Lock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerMu.Unlock()

	l.StopListeningForNotifications()
	l.transport.RemoveResponseListener(l.responseToken)

	if !l.transport.IsShared() {
		if closer, ok := l.transport.(*MulticastTransport); ok {
			_ = closer.Close()
		} else {
			_ = l.transport.StopListeningForMulticast()
		}
	}
}
