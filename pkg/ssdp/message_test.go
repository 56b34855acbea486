package ssdp

import (
	"strings"
	"testing"
)

func TestParseMessage_NotifyRequest(t *testing.T) {
	raw := "NOTIFY * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"CACHE-CONTROL: max-age = 1800\r\n" +
		"LOCATION: http://192.168.1.5:8080/desc.xml\r\n" +
		"NT: upnp:rootdevice\r\n" +
		"NTS: ssdp:alive\r\n" +
		"USN: uuid:abc::upnp:rootdevice\r\n" +
		"\r\n"

	msg, ok := ParseMessage([]byte(raw))
	if !ok {
		t.Fatal("expected ok=true for a well-formed NOTIFY datagram")
	}
	if !msg.IsNotifyRequest() {
		t.Error("expected IsNotifyRequest to be true")
	}
	if v, _ := msg.Header("nt"); v != "upnp:rootdevice" {
		t.Errorf("expected NT header 'upnp:rootdevice' (case-insensitive lookup), got %q", v)
	}
	if v, _ := msg.Header("USN"); v != "uuid:abc::upnp:rootdevice" {
		t.Errorf("unexpected USN %q", v)
	}
}

func TestParseMessage_SearchRequest(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 3\r\n" +
		"ST: ssdp:all\r\n" +
		"\r\n"

	msg, ok := ParseMessage([]byte(raw))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !msg.IsSearchRequest() {
		t.Error("expected IsSearchRequest to be true")
	}
	if msg.HeaderOr("ST", "") != "ssdp:all" {
		t.Errorf("unexpected ST %q", msg.HeaderOr("ST", ""))
	}
}

func TestParseMessage_SearchResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age = 1800\r\n" +
		"ST: upnp:rootdevice\r\n" +
		"USN: uuid:abc::upnp:rootdevice\r\n" +
		"LOCATION: http://192.168.1.5:8080/desc.xml\r\n" +
		"\r\n"

	msg, ok := ParseMessage([]byte(raw))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !msg.IsSearchResponse() {
		t.Error("expected IsSearchResponse to be true")
	}
}

func TestParseMessage_MalformedStartLineIsDroppedSilently(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHOST: example.com\r\n\r\n"
	_, ok := ParseMessage([]byte(raw))
	if ok {
		t.Error("expected ok=false for an unrecognized start-line")
	}
}

func TestParseMessage_HeaderWithoutColonIsSkipped(t *testing.T) {
	raw := "NOTIFY * HTTP/1.1\r\n" +
		"malformed-line-no-colon\r\n" +
		"NT: upnp:rootdevice\r\n" +
		"\r\n"

	msg, ok := ParseMessage([]byte(raw))
	if !ok {
		t.Fatal("expected ok=true despite one malformed header line")
	}
	if v, _ := msg.Header("NT"); v != "upnp:rootdevice" {
		t.Errorf("expected NT to still parse, got %q", v)
	}
}

func TestMessage_HeaderOr_DefaultWhenAbsent(t *testing.T) {
	msg := &Message{headers: map[string]string{}}
	if got := msg.HeaderOr("ST", "fallback"); got != "fallback" {
		t.Errorf("expected fallback value, got %q", got)
	}
}

func TestBuildDatagram_OrdersKnownHeadersFirst(t *testing.T) {
	headers := map[string]string{
		"USN": "uuid:abc",
		"NT":  "upnp:rootdevice",
		"X-CUSTOM": "value",
	}
	out := string(buildNotify(headers))

	ntIdx := strings.Index(out, "NT:")
	usnIdx := strings.Index(out, "USN:")
	customIdx := strings.Index(out, "X-CUSTOM:")

	if ntIdx == -1 || usnIdx == -1 || customIdx == -1 {
		t.Fatalf("expected all headers present in output, got:\n%s", out)
	}
	if !(ntIdx < usnIdx && usnIdx < customIdx) {
		t.Errorf("expected NT before USN before the unrecognized header, got:\n%s", out)
	}
	if !strings.HasPrefix(out, "NOTIFY * HTTP/1.1\r\n") {
		t.Errorf("expected NOTIFY start-line, got:\n%s", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\n") {
		t.Error("expected a terminating blank line")
	}
}

func TestBuildSearchRequest_StartLine(t *testing.T) {
	out := string(buildSearchRequest(map[string]string{"ST": "ssdp:all"}))
	if !strings.HasPrefix(out, "M-SEARCH * HTTP/1.1\r\n") {
		t.Errorf("unexpected start-line in:\n%s", out)
	}
}

func TestBuildSearchResponse_StartLine(t *testing.T) {
	out := string(buildSearchResponse(map[string]string{"ST": "ssdp:all"}))
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("unexpected start-line in:\n%s", out)
	}
}

func TestMaxAgeHeader_LiteralSpacing(t *testing.T) {
	got := maxAgeHeader(1800)
	if got != "max-age = 1800" {
		t.Errorf("expected literal 'max-age = 1800' spelling, got %q", got)
	}
}

func TestParseMaxAge_SpacedForm(t *testing.T) {
	seconds, ok := parseMaxAge("max-age = 1800")
	if !ok || seconds != 1800 {
		t.Errorf("expected (1800, true), got (%d, %v)", seconds, ok)
	}
}

func TestParseMaxAge_CompactForm(t *testing.T) {
	seconds, ok := parseMaxAge("max-age=60")
	if !ok || seconds != 60 {
		t.Errorf("expected (60, true), got (%d, %v)", seconds, ok)
	}
}

func TestParseMaxAge_Absent(t *testing.T) {
	_, ok := parseMaxAge("no-cache")
	if ok {
		t.Error("expected ok=false when max-age is absent")
	}
}

func TestServerHeader_Format(t *testing.T) {
	got := serverHeader("Linux", "5.0")
	if !strings.HasPrefix(got, "Linux/5.0 UPnP/1.0 RSSDP/") {
		t.Errorf("unexpected SERVER header %q", got)
	}
}

func TestUserAgentHeader_Format(t *testing.T) {
	got := userAgentHeader("Linux", "5.0")
	if got != "Linux/5.0 UPnP/1.0" {
		t.Errorf("unexpected USER-AGENT header %q", got)
	}
}
