package tcp

import (
	"fmt"
	"net"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/transport"
)

// listenConnector implements the IListenConnector interface for tcp sockets
type listenConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListenConnector)
// --------------------------------------------------------------------------

func (c *listenConnector) GetName() string {
	return "tcp"
}

func (c *listenConnector) Listen(config common.PipelineConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp socket: %w", err)
	}
	return listener, nil
}

func (c *listenConnector) UpgradeConnection(conn net.Conn, config common.PipelineConfig) error {
	return transport.UpgradeTCP(conn, config.SocketConf, config.TCPConf)
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewListenConnector creates the tcp connector of a pipeline
func NewListenConnector() transport.IListenConnector {
	return &listenConnector{}
}
