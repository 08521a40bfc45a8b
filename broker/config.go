package broker

import "time"

// Config holds every tunable of the broker's network, protocol and
// authentication behavior. New fills zero-value fields from DefaultConfig
// (see fillDefaults).
type Config struct {
	// ListenHost is the address the TCP listener binds to.
	ListenHost string `json:"listen_host"`
	// ListenPort is the TCP port the listener binds to.
	ListenPort int `json:"listen_port"`

	// MaxPacketSize is the largest MQTT control packet (fixed header +
	// variable header + payload) the broker accepts before closing the
	// connection with MaxRequestSize.
	MaxPacketSize int `json:"max_packet_size"`

	// KeepaliveGraceMultiplier scales the CONNECT keepalive interval to
	// get the actual idle timeout: a client negotiating a 60s keepalive is
	// dropped after 60 * KeepaliveGraceMultiplier seconds of silence.
	KeepaliveGraceMultiplier float64 `json:"keepalive_grace_multiplier"`

	// StatsPublishInterval is how often the broker republishes its $SYS
	// statistics topics. It is a time.Duration, so a JSON
	// stats_publish_interval_secs value is decoded as nanoseconds, not
	// seconds.
	StatsPublishInterval time.Duration `json:"stats_publish_interval_secs"`

	// OutboundHighWaterBytes is the per-connection outbound queue size
	// above which every further packet for that connection is dropped,
	// whatever its QoS; QoS 1/2 delivery is not paused, and a dropped QoS
	// 1/2 PUBLISH stays in the session's outbound_inflight.
	OutboundHighWaterBytes int `json:"outbound_highwater_bytes"`

	// AllowAnonymous permits CONNECT packets that carry no username.
	AllowAnonymous bool `json:"allow_anonymous"`

	// PollTimeout bounds how long a single event-loop iteration waits in
	// the readiness multiplexer before it comes back around to service
	// keepalive sweeps and periodic tasks.
	PollTimeout time.Duration `json:"poll_timeout"`

	// ConnectTimeout bounds how long a TCP connection may sit in
	// stateAwaitingConnect without sending a CONNECT packet before the
	// broker drops it, independent of KeepaliveGraceMultiplier (which only
	// applies once a session has negotiated a keepalive).
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// DefaultConfig returns a Config populated with the values named in the
// broker's external interface contract.
func DefaultConfig() Config {
	return Config{
		ListenHost:               "0.0.0.0",
		ListenPort:               1883,
		MaxPacketSize:            2 * 1024 * 1024,
		KeepaliveGraceMultiplier: 1.5,
		StatsPublishInterval:     10 * time.Second,
		OutboundHighWaterBytes:   16 * 1024 * 1024,
		AllowAnonymous:           true,
		PollTimeout:              100 * time.Millisecond,
		ConnectTimeout:           10 * time.Second,
	}
}

// fillDefaults replaces every zero-valued field of c with DefaultConfig's
// value, so callers can supply a partially populated Config. AllowAnonymous
// is the exception: its zero value false is kept as given.
func (c Config) fillDefaults() Config {
	d := DefaultConfig()
	if c.ListenHost == "" {
		c.ListenHost = d.ListenHost
	}
	if c.ListenPort == 0 {
		c.ListenPort = d.ListenPort
	}
	if c.MaxPacketSize == 0 {
		c.MaxPacketSize = d.MaxPacketSize
	}
	if c.KeepaliveGraceMultiplier == 0 {
		c.KeepaliveGraceMultiplier = d.KeepaliveGraceMultiplier
	}
	if c.StatsPublishInterval == 0 {
		c.StatsPublishInterval = d.StatsPublishInterval
	}
	if c.OutboundHighWaterBytes == 0 {
		c.OutboundHighWaterBytes = d.OutboundHighWaterBytes
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	return c
}
