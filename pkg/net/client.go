package net

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/types"
)

var log = logging.Logger("net")

// Namespace of the node API methods used by the subnet pipeline.
const Namespace = "Subnet"

// TxResult is the mempool admission result of a broadcast transaction.
type TxResult struct {
	Cid cid.Cid `json:"cid"`
	// ExitCode is non-zero when the mempool rejected the transaction.
	ExitCode exitcode.ExitCode `json:"exitCode"`
	Info     string            `json:"info"`
}

// Client is the view of the local node the checkpoint broadcaster needs.
// Implementations must be safe for concurrent use.
type Client interface {
	// Syncing reports whether the node is still catching up with the chain.
	Syncing(ctx context.Context) (bool, error)
	// StateNonce is the next nonce of addr, including pending transactions.
	StateNonce(ctx context.Context, addr address.Address) (uint64, error)
	BroadcastTx(ctx context.Context, smsg *types.SignedMessage) (*TxResult, error)
}

// SubnetStruct is the json-rpc client stub of Client.
type SubnetStruct struct {
	Internal struct {
		Syncing     func(ctx context.Context) (bool, error)
		StateNonce  func(ctx context.Context, addr address.Address) (uint64, error)
		BroadcastTx func(ctx context.Context, smsg *types.SignedMessage) (*TxResult, error)
	}
}

var _ Client = (*SubnetStruct)(nil)

func (s *SubnetStruct) Syncing(ctx context.Context) (bool, error) {
	return s.Internal.Syncing(ctx)
}

func (s *SubnetStruct) StateNonce(ctx context.Context, addr address.Address) (uint64, error) {
	return s.Internal.StateNonce(ctx, addr)
}

func (s *SubnetStruct) BroadcastTx(ctx context.Context, smsg *types.SignedMessage) (*TxResult, error) {
	return s.Internal.BroadcastTx(ctx, smsg)
}

// NewClient dials the node API described by info.
func NewClient(ctx context.Context, info APIInfo) (Client, jsonrpc.ClientCloser, error) {
	addr, err := info.DialArgs(APIVersion)
	if err != nil {
		return nil, nil, xerrors.Errorf("parsing api address %s: %w", info.Addr, err)
	}

	var res SubnetStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, Namespace,
		[]interface{}{
			&res.Internal,
		},
		info.AuthHeader(),
	)
	if err != nil {
		return nil, nil, xerrors.Errorf("dialing %s: %w", addr, err)
	}
	log.Infow("connected to node api", "addr", addr)
	return &res, closer, nil
}
