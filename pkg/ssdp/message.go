package ssdp

import (
	"fmt"
	"strconv"
	"strings"
)

// messageKind identifies which of the three recognized HTTPU start-lines
// a datagram carries.
type messageKind int

const (
	kindUnknown messageKind = iota
	kindNotifyRequest
	kindSearchRequest
	kindSearchResponse
)

// Message is a parsed HTTPU datagram: a start-line plus headers, looked
// up case-insensitively.
type Message struct {
	kind    messageKind
	headers map[string]string // keyed by canonical upper-case header name
}

// canonicalHeaderNames lists the header spellings the wire protocol
// requires; any other name is upper-cased.
var canonicalHeaderNames = map[string]string{
	"HOST":          "HOST",
	"CACHE-CONTROL": "CACHE-CONTROL",
	"LOCATION":      "LOCATION",
	"NT":            "NT",
	"NTS":           "NTS",
	"USN":           "USN",
	"ST":            "ST",
	"MX":            "MX",
	"MAN":           "MAN",
	"EXT":           "EXT",
	"SERVER":        "SERVER",
	"DATE":          "DATE",
	"USER-AGENT":    "USER-AGENT",
}

func canonicalHeader(name string) string {
	upper := strings.ToUpper(name)
	if canon, ok := canonicalHeaderNames[upper]; ok {
		return canon
	}
	return upper
}

// Header returns the value of the named header, matched
// case-insensitively; ok is false when the header is absent (never an
// error).
func (m *Message) Header(name string) (value string, ok bool) {
	v, ok := m.headers[canonicalHeader(name)]
	return v, ok
}

// HeaderOr returns the header value, or def if absent.
func (m *Message) HeaderOr(name, def string) string {
	if v, ok := m.Header(name); ok {
		return v
	}
	return def
}

// IsNotifyRequest reports whether the message is a "NOTIFY * HTTP/1.1".
func (m *Message) IsNotifyRequest() bool { return m.kind == kindNotifyRequest }

// IsSearchRequest reports whether the message is an "M-SEARCH * HTTP/1.1".
func (m *Message) IsSearchRequest() bool { return m.kind == kindSearchRequest }

// IsSearchResponse reports whether the message is an "HTTP/1.1 200 OK".
func (m *Message) IsSearchResponse() bool { return m.kind == kindSearchResponse }

// ParseMessage parses a raw HTTPU datagram. It returns ok=false (never
// an error) for anything other than the three recognized start-lines,
// or for a frame missing its terminating blank line: malformed
// datagrams are dropped silently, not reported.
func ParseMessage(raw []byte) (msg *Message, ok bool) {
	text := string(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil, false
	}

	startLine := strings.TrimSpace(lines[0])
	var kind messageKind
	switch {
	case strings.HasPrefix(strings.ToUpper(startLine), "HTTP/"):
		if fields := strings.Fields(startLine); len(fields) < 2 || fields[1] != "200" {
			return nil, false
		}
		kind = kindSearchResponse
	case strings.HasSuffix(strings.ToUpper(startLine), "* HTTP/1.1"):
		if strings.HasPrefix(strings.ToUpper(startLine), "NOTIFY") {
			kind = kindNotifyRequest
		} else if strings.HasPrefix(strings.ToUpper(startLine), "M-SEARCH") {
			kind = kindSearchRequest
		} else {
			return nil, false
		}
	default:
		return nil, false
	}

	headers := make(map[string]string)
	terminated := false
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			terminated = true
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := canonicalHeader(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])
		headers[name] = value
	}
	if !terminated {
		return nil, false
	}

	return &Message{kind: kind, headers: headers}, true
}

// headerOrder lists header emission order for readability/interop; the
// wire protocol does not require a stable order, but peers that
// sniff the first few headers benefit from one.
var headerOrder = []string{
	"HOST", "CACHE-CONTROL", "LOCATION", "NT", "NTS", "USN", "ST", "MX",
	"MAN", "EXT", "SERVER", "DATE", "USER-AGENT",
}

// buildDatagram renders a start-line plus an ordered header set into a
// CRLF-terminated HTTPU frame.
func buildDatagram(startLine string, headers map[string]string) []byte {
	var b strings.Builder
	b.WriteString(startLine)
	b.WriteString("\r\n")

	seen := make(map[string]bool, len(headers))
	for _, name := range headerOrder {
		if v, ok := headers[name]; ok {
			fmt.Fprintf(&b, "%s: %s\r\n", name, v)
			seen[name] = true
		}
	}
	for name, v := range headers {
		if !seen[name] {
			fmt.Fprintf(&b, "%s: %s\r\n", name, v)
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// buildNotify renders "NOTIFY * HTTP/1.1" with the given headers.
func buildNotify(headers map[string]string) []byte {
	return buildDatagram("NOTIFY * HTTP/1.1", headers)
}

// buildSearchRequest renders "M-SEARCH * HTTP/1.1" with the given
// headers.
func buildSearchRequest(headers map[string]string) []byte {
	return buildDatagram("M-SEARCH * HTTP/1.1", headers)
}

// buildSearchResponse renders "HTTP/1.1 200 OK" with the given headers.
func buildSearchResponse(headers map[string]string) []byte {
	return buildDatagram("HTTP/1.1 200 OK", headers)
}

// maxAgeHeader renders the CACHE-CONTROL value in the literal
// "max-age = N" spelling (spaces around '=' preserved for interop).
func maxAgeHeader(seconds int) string {
	return fmt.Sprintf("max-age = %d", seconds)
}

// parseMaxAge extracts the integer seconds from a CACHE-CONTROL header
// value, accepting both "max-age = N" and "max-age=N" spellings. ok is
// false when the header doesn't contain a parseable max-age.
func parseMaxAge(cacheControl string) (seconds int, ok bool) {
	lower := strings.ToLower(cacheControl)
	idx := strings.Index(lower, "max-age")
	if idx < 0 {
		return 0, false
	}
	rest := cacheControl[idx+len("max-age"):]
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "=")
	rest = strings.TrimSpace(rest)

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// serverHeader renders the SERVER header: "{osName}/{osVersion} UPnP/1.0 RSSDP/{implVersion}".
func serverHeader(osName, osVersion string) string {
	return fmt.Sprintf("%s/%s UPnP/1.0 RSSDP/%s", osName, osVersion, implVersion)
}

// userAgentHeader renders Locator's USER-AGENT header, matching the
// SERVER header's token shape per common SSDP practice.
func userAgentHeader(osName, osVersion string) string {
	return fmt.Sprintf("%s/%s UPnP/1.0", osName, osVersion)
}
