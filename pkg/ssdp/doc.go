// Package ssdp implements the Simple Service Discovery Protocol, the
// discovery layer of UPnP 1.0/1.1.
//
// It provides two coordinated pieces built on a shared HTTPU-over-UDP
// Transport:
//
//   - Publisher advertises a forest of UPnP devices (root and embedded)
//     with periodic NOTIFY ssdp:alive multicasts, answers M-SEARCH
//     requests with matching unicast responses, and emits NOTIFY
//     ssdp:byebye on removal or shutdown.
//   - Locator issues M-SEARCH multicasts, listens for NOTIFY
//     announcements, maintains a TTL-bounded cache of discovered
//     devices, and emits availability/unavailability events.
//
// # Basic usage
//
//	transport, err := ssdp.NewSharedMulticastTransport(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer transport.Close()
//
//	pub, err := ssdp.NewPublisher(transport, "Linux", "5.0", false)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pub.Dispose()
//	pub.AddDevice(root)
//	pub.StartSendingAliveNotifications(30 * time.Minute)
//
//	loc, err := ssdp.NewLocator(transport, "Linux", "5.0")
//	if err != nil {
//		log.Fatal(err)
//	}
//	loc.Listener.OnDeviceAvailable = func(d *ssdp.DiscoveredDevice, isNew bool, remoteIP net.IP) {
//		log.Printf("found %s at %s", d.USN, d.DescriptionLocation)
//	}
//	loc.StartListeningForNotifications()
//
// Device-description HTTP fetching, SOAP control, GENA eventing, and
// the OS-level socket/interface primitives are collaborators outside
// this package's scope; see Transport for the seam.
package ssdp
