package types

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
)

// MessageReceipt is what the chain records for an applied message.
type MessageReceipt struct {
	ExitCode exitcode.ExitCode `json:"exitCode"`
	Return   []byte            `json:"return"`
	GasUsed  int64             `json:"gasUsed"`
}

// ApplyRet is the result of executing one message.
type ApplyRet struct {
	Receipt MessageReceipt
	// FailureInfo is set by the executor when the message failed, along with
	// a non-zero exit code.
	FailureInfo string
}

// Failed reports whether the message did not execute successfully.
func (r *ApplyRet) Failed() bool {
	return r.FailureInfo != "" || !r.Receipt.ExitCode.IsSuccess()
}

// Emitters maps actors that emitted events to their delegated address.
type Emitters map[abi.ActorID]address.Address

// ExecOutput extends an ApplyRet with the message fields the caller may no
// longer have at hand, e.g. when it only holds the message CID.
type ExecOutput struct {
	ApplyRet ApplyRet
	From     address.Address
	To       address.Address
	Method   abi.MethodNum
	GasLimit int64
	// Delegated addresses of event emitters, if they have one.
	Emitters Emitters
}

// NewExecOutput restates msg alongside its result.
func NewExecOutput(msg *Message, ret ApplyRet, emitters Emitters) *ExecOutput {
	return &ExecOutput{
		ApplyRet: ret,
		From:     msg.From,
		To:       msg.To,
		Method:   msg.Method,
		GasLimit: msg.GasLimit,
		Emitters: emitters,
	}
}
