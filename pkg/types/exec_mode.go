package types

import (
	"fmt"

	"github.com/filecoin-project/venus-ipc/pkg/constants"
)

// ExecMode selects how the executor applies a message.
type ExecMode int

const (
	// ExecExplicit applies a user message: the sender nonce is checked and gas
	// fees are charged.
	ExecExplicit ExecMode = iota
	// ExecImplicit applies a system message without nonce or fee checks.
	ExecImplicit
)

func (m ExecMode) String() string {
	switch m {
	case ExecExplicit:
		return "explicit"
	case ExecImplicit:
		return "implicit"
	default:
		return fmt.Sprintf("ExecMode(%d)", int(m))
	}
}

// ExecModeOf returns the mode a message is admitted with. Only the system
// actor sends implicit messages; rejecting externally submitted messages that
// claim this sender is the job of the admission layer.
func ExecModeOf(msg *Message) ExecMode {
	if msg.From == constants.SystemActorAddr {
		return ExecImplicit
	}
	return ExecExplicit
}
