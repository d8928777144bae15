package unix

import (
	"fmt"
	"net"
	"os"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/transport"
)

// listenConnector implements the IListenConnector interface for unix sockets
type listenConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListenConnector)
// --------------------------------------------------------------------------

func (c *listenConnector) GetName() string {
	return "unix"
}

func (c *listenConnector) Listen(config common.PipelineConfig) (net.Listener, error) {
	socketPath := config.Endpoint

	// Remove a stale socket file of a previous run
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create unix socket: %w", err)
	}

	return listener, nil
}

func (c *listenConnector) UpgradeConnection(net.Conn, common.PipelineConfig) error {
	return nil // nothing to tune
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewListenConnector creates the unix socket connector of a pipeline
func NewListenConnector() transport.IListenConnector {
	return &listenConnector{}
}
