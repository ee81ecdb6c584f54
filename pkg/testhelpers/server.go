package testhelpers

import (
	"github.com/filecoin-project/go-jsonrpc"

	"github.com/filecoin-project/venus-ipc/pkg/net"
)

// NewClientServer serves impl as the node API the net client dials.
func NewClientServer(impl net.Client) *jsonrpc.RPCServer {
	server := jsonrpc.NewServer()
	server.Register(net.Namespace, impl)
	return server
}
