package ssdp

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeviceAddedHandler and DeviceRemovedHandler notify a root (or an
// embedded device acting as a parent) that a child was attached or
// detached, using a plain callback-field idiom.
type DeviceAddedHandler func(child *EmbeddedDevice)
type DeviceRemovedHandler func(child *EmbeddedDevice)

// Service describes a UPnP service hosted by a device, extending the
// enumeration beyond bare devices.
type Service struct {
	ServiceType string
	ServiceID   string
}

// Device carries the fields common to root and embedded devices.
type Device struct {
	UUID          string
	DeviceType    string
	TypeNamespace string
	TypeVersion   string
	DeviceClass   string // "device" when empty
	FriendlyName  string
	Manufacturer  string
	ModelName     string
	Services      []Service

	// udnOverride, when non-empty, replaces the derived "uuid:{UUID}" UDN.
	udnOverride string

	mu       sync.Mutex
	children []*EmbeddedDevice

	OnDeviceAdded   DeviceAddedHandler
	OnDeviceRemoved DeviceRemovedHandler
}

// FullDeviceType returns "urn:{namespace}:{class|device}:{deviceType}:{version}".
func (d *Device) FullDeviceType() string {
	class := d.DeviceClass
	if class == "" {
		class = "device"
	}
	return fmt.Sprintf("urn:%s:%s:%s:%s", d.TypeNamespace, class, d.DeviceType, d.TypeVersion)
}

// UDN returns "uuid:{uuid}" unless an explicit override was set via
// SetUDN.
func (d *Device) UDN() string {
	if d.udnOverride != "" {
		return d.udnOverride
	}
	return "uuid:" + d.UUID
}

// SetUDN overrides the derived UDN.
func (d *Device) SetUDN(udn string) {
	d.udnOverride = udn
}

// Embedded returns the device's children in declaration order.
func (d *Device) Embedded() []*EmbeddedDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*EmbeddedDevice, len(d.children))
	copy(out, d.children)
	return out
}

// RootDevice is a top-level UPnP device, owning a tree of embedded
// devices.
type RootDevice struct {
	Device

	Location      string // device-description URL, e.g. "http://192.168.1.5:8080/desc.xml"
	CacheLifetime time.Duration
	Address       net.IP

	SupportPnpRootDevice bool
}

// NewRootDevice builds a RootDevice. If uuidStr is empty a new random
// UUID is generated (google/uuid, matching the pack's UPnP-oriented
// examples).
func NewRootDevice(uuidStr, deviceType, typeNamespace, typeVersion, location string, cacheLifetime time.Duration) *RootDevice {
	if uuidStr == "" {
		uuidStr = uuid.NewString()
	}
	return &RootDevice{
		Device: Device{
			UUID:          uuidStr,
			DeviceType:    deviceType,
			TypeNamespace: typeNamespace,
			TypeVersion:   typeVersion,
		},
		Location:             location,
		CacheLifetime:        cacheLifetime,
		SupportPnpRootDevice: true,
	}
}

// EmbeddedDevice is a non-root device owned by exactly one RootDevice.
type EmbeddedDevice struct {
	Device

	root *RootDevice
}

// NewEmbeddedDevice builds an EmbeddedDevice not yet attached to a root.
func NewEmbeddedDevice(uuidStr, deviceType, typeNamespace, typeVersion string) *EmbeddedDevice {
	if uuidStr == "" {
		uuidStr = uuid.NewString()
	}
	return &EmbeddedDevice{
		Device: Device{
			UUID:          uuidStr,
			DeviceType:    deviceType,
			TypeNamespace: typeNamespace,
			TypeVersion:   typeVersion,
		},
	}
}

// Root returns the embedded device's owning root, or nil if unattached.
func (e *EmbeddedDevice) Root() *RootDevice {
	return e.root
}

// AddDevice attaches child to parent's tree. It fails with
// ErrAttachToSelf if child == parent's device, or with
// ErrAlreadyAttached if child already belongs to a different root.
//
// parent may be a *RootDevice or an *EmbeddedDevice; both expose the
// embedded Device and a children slice through this shared helper.
func addChild(parent *Device, parentRoot *RootDevice, child *EmbeddedDevice) error {
	if child == nil {
		return ErrNilDevice
	}
	if &child.Device == parent {
		return ErrAttachToSelf
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	if child.root != nil && child.root != parentRoot {
		return ErrAlreadyAttached
	}
	for _, existing := range parent.children {
		if existing == child {
			return nil // idempotent
		}
	}

	child.root = parentRoot
	parent.children = append(parent.children, child)
	if parent.OnDeviceAdded != nil {
		parent.OnDeviceAdded(child)
	}
	return nil
}

// AddDevice attaches child as an embedded device of the root.
func (r *RootDevice) AddDevice(child *EmbeddedDevice) error {
	return addChild(&r.Device, r, child)
}

// AddDevice attaches child as an embedded device of e, still owned by
// e's root tree (multi-level embedding).
func (e *EmbeddedDevice) AddDevice(child *EmbeddedDevice) error {
	return addChild(&e.Device, e.root, child)
}

// RemoveDevice detaches child from parent. No-op if child is not a
// member.
func removeChild(parent *Device, child *EmbeddedDevice) {
	parent.mu.Lock()
	defer parent.mu.Unlock()

	for i, existing := range parent.children {
		if existing == child {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			child.root = nil
			if parent.OnDeviceRemoved != nil {
				parent.OnDeviceRemoved(child)
			}
			return
		}
	}
}

// RemoveDevice detaches child from the root.
func (r *RootDevice) RemoveDevice(child *EmbeddedDevice) { removeChild(&r.Device, child) }

// RemoveDevice detaches child from e.
func (e *EmbeddedDevice) RemoveDevice(child *EmbeddedDevice) { removeChild(&e.Device, child) }

// enumeratedPair is one (notificationTypeOrSearchTarget, usn) entry
// produced by the device enumeration rules.
type enumeratedPair struct {
	NTorST string
	USN    string
}

// enumerate walks the device tree rooted at root and yields the full
// set of advertisement pairs in declaration order, implementing
// device enumeration as a depth-first traversal.
func enumerate(root *RootDevice) []enumeratedPair {
	var pairs []enumeratedPair
	udn := root.UDN()

	pairs = append(pairs, enumeratedPair{"upnp:rootdevice", udn + "::upnp:rootdevice"})
	if root.SupportPnpRootDevice {
		pairs = append(pairs, enumeratedPair{"pnp:rootdevice", udn + "::pnp:rootdevice"})
	}

	pairs = append(pairs, enumerateDevice(&root.Device)...)
	for _, child := range root.Embedded() {
		pairs = append(pairs, enumerateEmbedded(child)...)
	}
	return pairs
}

// enumerateDevice yields the identity + type pairs for one device (root
// or embedded), plus one pair per hosted service.
func enumerateDevice(d *Device) []enumeratedPair {
	udn := d.UDN()
	fullType := d.FullDeviceType()
	pairs := []enumeratedPair{
		{udn, udn},
		{fullType, udn + "::" + fullType},
	}
	for _, svc := range d.Services {
		pairs = append(pairs, enumeratedPair{svc.ServiceType, udn + "::" + svc.ServiceType})
	}
	return pairs
}

// enumerateEmbedded recurses into an embedded device's own children,
// with the root-only pairs (step 1) disabled per spec.
func enumerateEmbedded(e *EmbeddedDevice) []enumeratedPair {
	pairs := enumerateDevice(&e.Device)
	for _, child := range e.Embedded() {
		pairs = append(pairs, enumerateEmbedded(child)...)
	}
	return pairs
}

// flattenDevices returns every device (root and embedded) in the forest
// reachable from root, for "ssdp:all" matching.
func flattenDevices(root *RootDevice) []*Device {
	out := []*Device{&root.Device}
	var walk func(children []*EmbeddedDevice)
	walk = func(children []*EmbeddedDevice) {
		for _, c := range children {
			out = append(out, &c.Device)
			walk(c.Embedded())
		}
	}
	walk(root.Embedded())
	return out
}

// deviceMatchesURNOrUUID implements the "uuid:XYZ" and "urn:..." ST
// matching rules for one device; root-only targets
// ("upnp:rootdevice"/"pnp:rootdevice"/"ssdp:all") are handled by the
// caller before reaching here.
func deviceMatchesURNOrUUID(d *Device, st string) bool {
	lower := strings.ToLower(st)
	switch {
	case strings.HasPrefix(lower, "uuid:"):
		return strings.EqualFold(st[len("uuid:"):], d.UUID)
	case strings.HasPrefix(lower, "urn:"):
		return strings.EqualFold(st, d.FullDeviceType())
	default:
		return false
	}
}
