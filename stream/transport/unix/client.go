package unix

import (
	"net"
	"time"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/transport"
)

// dialConnector implements the IDialConnector interface for unix sockets
type dialConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IDialConnector)
// --------------------------------------------------------------------------

func (c *dialConnector) GetName() string {
	return "unix"
}

func (c *dialConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}

func (c *dialConnector) UpgradeConnection(net.Conn, common.ClientConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewDialConnector creates the unix socket connector of a producer
func NewDialConnector() transport.IDialConnector {
	return &dialConnector{}
}
