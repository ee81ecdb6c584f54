package node

import (
	"github.com/filecoin-project/go-jsonrpc"

	"github.com/filecoin-project/venus-ipc/pkg/checkpoint"
	"github.com/filecoin-project/venus-ipc/pkg/interpreter"
)

// Node is the execution side of a subnet node.
type Node struct {
	interpreter *interpreter.Interpreter
	checkpoints *checkpoint.Manager

	rpcCloser jsonrpc.ClientCloser
}

func (node *Node) Interpreter() *interpreter.Interpreter {
	return node.interpreter
}

func (node *Node) Checkpoints() *checkpoint.Manager {
	return node.checkpoints
}

// Stop waits for queued checkpoint signatures, then closes the node API
// connection.
func (node *Node) Stop() error {
	err := node.interpreter.Close()
	node.closeRPC()
	if err != nil {
		return err
	}
	log.Info("subnet node stopped")
	return nil
}

func (node *Node) closeRPC() {
	if node.rpcCloser != nil {
		node.rpcCloser()
		node.rpcCloser = nil
	}
}
