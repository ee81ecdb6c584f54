package vm

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/venus-ipc/pkg/types"
)

// ExecState is the VM state of the block being executed. It is owned by the
// interpreter for the duration of a block and must not be shared with other
// goroutines while the block is open.
//
// Message processing failures are reported in the receipt of the returned
// ApplyRet. A non-nil error means the executor itself failed and the block
// cannot be applied.
type ExecState interface {
	// ExecuteImplicit applies a message without nonce checks or gas fees.
	ExecuteImplicit(ctx context.Context, msg *types.Message) (types.ApplyRet, types.Emitters, error)
	// ExecuteExplicit applies a user message: the nonce must match the
	// sender's next sequence and gas is charged at the message's fee cap and
	// premium for the gas actually used.
	ExecuteExplicit(ctx context.Context, msg *types.Message) (types.ApplyRet, types.Emitters, error)

	BlockHeight() abi.ChainEpoch
	// BlockHash returns the hash of the block being executed, if known.
	BlockHash() ([]byte, bool)
	ChainID() uint64

	AppVersion() uint64
	UpdateAppVersion(f func(*uint64))
}

// Execute dispatches msg by mode.
func Execute(ctx context.Context, st ExecState, msg *types.Message, mode types.ExecMode) (types.ApplyRet, types.Emitters, error) {
	if mode == types.ExecImplicit {
		return st.ExecuteImplicit(ctx, msg)
	}
	return st.ExecuteExplicit(ctx, msg)
}
