package interpreter

import (
	"errors"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/venus-ipc/pkg/types"
)

var (
	// ErrFatalExecution matches every FatalExecutionError.
	ErrFatalExecution = errors.New("fatal execution error")
	// ErrExecModeMismatch is returned when a message is delivered in a mode
	// its sender does not allow.
	ErrExecModeMismatch = errors.New("exec mode does not match sender")
	// ErrOutOfOrder is returned when Begin, Deliver and End are not called in
	// block order.
	ErrOutOfOrder = errors.New("block phase out of order")
)

// FatalExecutionError means the block cannot be applied: an implicit message
// failed, an upgrade failed or the executor itself broke.
type FatalExecutionError struct {
	Height abi.ChainEpoch
	// Msg and Ret are set when an implicit message failed.
	Msg *types.Message
	Ret *types.ApplyRet
	Err error
}

func (e *FatalExecutionError) Error() string {
	if e.Ret != nil {
		return fmt.Sprintf("implicit message to %s method %d failed at height %d with exit code %d: %s",
			e.Msg.To, e.Msg.Method, e.Height, e.Ret.Receipt.ExitCode, e.Ret.FailureInfo)
	}
	return fmt.Sprintf("fatal execution error at height %d: %s", e.Height, e.Err)
}

func (e *FatalExecutionError) Is(target error) bool {
	return target == ErrFatalExecution
}

func (e *FatalExecutionError) Unwrap() error {
	return e.Err
}
