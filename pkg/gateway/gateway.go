package gateway

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
	"github.com/filecoin-project/venus-ipc/pkg/types"
	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

// CallError is returned when the gateway actor rejected a call.
type CallError struct {
	Method      abi.MethodNum
	ExitCode    exitcode.ExitCode
	FailureInfo string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("gateway method %d failed with exit code %d: %s", e.Method, e.ExitCode, e.FailureInfo)
}

// Caller reads and writes gateway state by executing implicit messages
// against the block state. It holds no state of its own and may be shared.
type Caller struct {
	addr address.Address
}

// NewCaller returns a Caller for the gateway at the reserved address.
func NewCaller() *Caller {
	return NewCallerAt(constants.GatewayActorAddr)
}

// NewCallerAt returns a Caller for a gateway deployed at addr.
func NewCallerAt(addr address.Address) *Caller {
	return &Caller{addr: addr}
}

// Address of the gateway actor.
func (c *Caller) Address() address.Address {
	return c.addr
}

// BottomUpCheckPeriod is the number of blocks between checkpoints.
func (c *Caller) BottomUpCheckPeriod(ctx context.Context, st vm.ExecState) (uint64, error) {
	var ret CheckPeriodReturn
	if err := c.call(ctx, st, Methods.BottomUpCheckPeriod, nil, &ret); err != nil {
		return 0, err
	}
	return ret.Period, nil
}

// CurrentPowerTable is the validator set as of the current state.
func (c *Caller) CurrentPowerTable(ctx context.Context, st vm.ExecState) (*PowerTableReturn, error) {
	var ret PowerTableReturn
	if err := c.call(ctx, st, Methods.CurrentPowerTable, nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// CheckpointPowerTable is the validator set recorded with the previous
// checkpoint, or the genesis validators before the first one.
func (c *Caller) CheckpointPowerTable(ctx context.Context, st vm.ExecState) (*PowerTableReturn, error) {
	var ret PowerTableReturn
	if err := c.call(ctx, st, Methods.CheckpointPowerTable, nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// BottomUpCheckpoint returns the checkpoint recorded at height, if any.
func (c *Caller) BottomUpCheckpoint(ctx context.Context, st vm.ExecState, height abi.ChainEpoch) (*types.Checkpoint, bool, error) {
	var ret BottomUpCheckpointReturn
	params := &BottomUpCheckpointParams{Height: int64(height)}
	if err := c.call(ctx, st, Methods.BottomUpCheckpoint, params, &ret); err != nil {
		return nil, false, err
	}
	if !ret.Found {
		return nil, false, nil
	}
	return &ret.Checkpoint, true, nil
}

// PendingBottomUpMessages are the outbound messages not yet included in a
// checkpoint.
func (c *Caller) PendingBottomUpMessages(ctx context.Context, st vm.ExecState) ([]types.CrossMsg, error) {
	var ret PendingBottomUpMessagesReturn
	if err := c.call(ctx, st, Methods.PendingBottomUpMessages, nil, &ret); err != nil {
		return nil, err
	}
	return ret.Messages, nil
}

// CreateBottomUpCheckpoint records cp in the gateway.
func (c *Caller) CreateBottomUpCheckpoint(ctx context.Context, st vm.ExecState, cp *types.Checkpoint, table types.PowerTable) error {
	params := &CreateBottomUpCheckpointParams{Checkpoint: *cp, PowerTable: table}
	return c.call(ctx, st, Methods.CreateBottomUpCheckpoint, params, nil)
}

// IncompleteCheckpoints lists the checkpoints of the open commit window that
// still collect signatures.
func (c *Caller) IncompleteCheckpoints(ctx context.Context, st vm.ExecState) ([]IncompleteCheckpoint, error) {
	var ret IncompleteCheckpointsReturn
	if err := c.call(ctx, st, Methods.IncompleteCheckpoints, nil, &ret); err != nil {
		return nil, err
	}
	return ret.Checkpoints, nil
}

// AddCheckpointSignatureMessage builds the user transaction a validator sends
// to sign a checkpoint. Gas parameters are filled in by the caller.
func (c *Caller) AddCheckpointSignatureMessage(from address.Address, nonce uint64, params *AddCheckpointSignatureParams) (*types.Message, error) {
	raw, err := encoding.Encode(params)
	if err != nil {
		return nil, err
	}
	return &types.Message{
		Version:    types.MessageVersion,
		From:       from,
		To:         c.addr,
		Nonce:      nonce,
		Value:      big.Zero(),
		GasFeeCap:  big.Zero(),
		GasPremium: big.Zero(),
		Method:     Methods.AddCheckpointSignature,
		Params:     raw,
	}, nil
}

func (c *Caller) call(ctx context.Context, st vm.ExecState, method abi.MethodNum, params interface{}, out interface{}) error {
	var raw []byte
	if params != nil {
		var err error
		if raw, err = encoding.Encode(params); err != nil {
			return xerrors.Errorf("encoding params of gateway method %d: %w", method, err)
		}
	}

	msg := types.NewImplicitMessage(c.addr, method, raw, st.BlockHeight())
	ret, _, err := st.ExecuteImplicit(ctx, msg)
	if err != nil {
		return xerrors.Errorf("executing gateway method %d: %w", method, err)
	}
	if ret.Failed() {
		return &CallError{Method: method, ExitCode: ret.Receipt.ExitCode, FailureInfo: ret.FailureInfo}
	}

	if out == nil {
		return nil
	}
	if err := encoding.Decode(ret.Receipt.Return, out); err != nil {
		return xerrors.Errorf("decoding return of gateway method %d: %w", method, err)
	}
	return nil
}
