package ssdp

import "time"

const (
	// MulticastAddress is the SSDP multicast group.
	MulticastAddress = "239.255.255.250"
	// MulticastPort is the SSDP multicast port.
	MulticastPort = 1900

	multicastEndpoint = "239.255.255.250:1900"

	// implVersion is woven into the SERVER header as RSSDP/{implVersion}.
	implVersion = "1.0"

	// maxDatagramSize is the inbound read buffer size; SSDP datagrams
	// are small and this module does not fragment. Outbound datagrams
	// are not checked against it.
	maxDatagramSize = 8192

	// searchRequestStaleAfter is the dedup window for M-SEARCH records.
	searchRequestStaleAfter = 500 * time.Millisecond

	// searchRequestSweepThreshold triggers a dedup-map cleanup pass.
	// Intentionally size-triggered, not time-triggered: see
	// isDuplicateSearch's doc comment for the tradeoff this implies.
	searchRequestSweepThreshold = 10

	// maxMX is the upper bound MX is clamped to before picking a
	// uniform random response delay.
	maxMX = 120

	// minResponseDelay is the floor of the M-SEARCH response delay.
	minResponseDelay = 16 * time.Millisecond

	// aliveHeartbeatFirstFire is the delay before the first heartbeat
	// tick after StartSendingAliveNotifications is called.
	aliveHeartbeatFirstFire = 5 * time.Second

	// byebyeSendCount / aliveSendCount / shutdownByebyeSendCount are the
	// sendMulticast repeat counts used for each message kind.
	aliveSendCount           = 1
	byebyeSendCount          = 3
	shutdownByebyeSendCount  = 1
	defaultSearchWaitSeconds = 3
)
