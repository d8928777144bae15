package transport

import (
	"net"
	"time"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IListenConnector defines the transport-specific operations of the receiving side
type IListenConnector interface {
	// Listen creates a listener on config.Endpoint and returns it
	Listen(config common.PipelineConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.PipelineConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// IDialConnector defines the transport-specific operations of the producing side
type IDialConnector interface {
	// Connect establishes a single connection to endpoint (timeout 0 = none)
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
