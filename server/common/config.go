package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Socket configuration structs
// --------------------------------------------------------------------------

// SocketConf holds kernel buffer sizing shared by all socket types.
type SocketConf struct {
	ReadBufferSize  int // bytes, 0 = kernel default
	WriteBufferSize int // bytes, 0 = kernel default
}

// TCPConf holds TCP-specific tuning applied to accepted connections.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int // 0 = disabled
	TCPLingerSec    int // < 0 = kernel default
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for one sKV server
// process.
type ServerConfig struct {
	// Endpoint is the TCP address the server listens on.
	Endpoint string

	// Store limits
	MaxKeys    int // 0 = unbounded
	SampleSize int // eviction sample size (0 = engine default)

	// Append log settings. An empty AOLPath disables persistence.
	AOLPath string
	AOLSync string // always | everysec | no

	// Socket tuning
	Socket SocketConf
	TCP    TCPConf

	// MetricsEndpoint exposes Prometheus-format metrics over HTTP when
	// non-empty (e.g. "127.0.0.1:9100").
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// PersistenceEnabled reports whether an append log path is configured.
func (c *ServerConfig) PersistenceEnabled() bool {
	return c.AOLPath != ""
}

// String returns a formatted string representation of the configuration.
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Server settings
	addSection("Server")
	addField("Endpoint", c.Endpoint)
	addField("Metrics Endpoint", orDisabled(c.MetricsEndpoint))

	// Store settings
	addSection("Store")
	if c.MaxKeys > 0 {
		addField("Max Keys", strconv.Itoa(c.MaxKeys))
		addField("Eviction Sample Size", strconv.Itoa(c.SampleSize))
	} else {
		addField("Max Keys", "unbounded")
	}

	// Persistence
	addSection("Persistence")
	if c.PersistenceEnabled() {
		addField("Append Log", c.AOLPath)
		addField("Sync Mode", c.AOLSync)
	} else {
		addField("Append Log", "disabled")
	}

	// Socket tuning
	addSection("Sockets")
	addField("TCP NoDelay", fmt.Sprintf("%t", c.TCP.TCPNoDelay))
	addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCP.TCPKeepAliveSec))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Socket.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Socket.WriteBufferSize))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

func orDisabled(s string) string {
	if s == "" {
		return "disabled"
	}
	return s
}
