package tcp

import (
	"net"
	"time"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/transport"
)

// dialConnector implements the IDialConnector interface for tcp sockets
type dialConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IDialConnector)
// --------------------------------------------------------------------------

func (c *dialConnector) GetName() string {
	return "tcp"
}

func (c *dialConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (c *dialConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return transport.UpgradeTCP(conn, config.SocketConf, config.TCPConf)
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewDialConnector creates the tcp connector of a producer
func NewDialConnector() transport.IDialConnector {
	return &dialConnector{}
}
