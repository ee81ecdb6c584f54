package interpreter

import (
	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"

	"github.com/filecoin-project/venus-ipc/pkg/checkpoint"
	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/fork"
	"github.com/filecoin-project/venus-ipc/pkg/metrics"
)

var log = logging.Logger("interpreter")

var invariantViolations = metrics.NewInt64Counter("checkpoint_invariant_violations", "Number of created checkpoints missing from the unsigned set of their validator")

type phase int

const (
	// between End and the next Begin
	phaseIdle phase = iota
	// after Begin, messages may be delivered
	phaseDelivering
)

func (p phase) String() string {
	if p == phaseDelivering {
		return "delivering"
	}
	return "idle"
}

// Interpreter runs the per-block pipeline of a subnet node: Begin runs
// upgrades and the implicit system messages, Deliver applies the block's
// messages and End creates checkpoints and hands signing to the broadcaster.
//
// Calls for a block are sequential and own the block state. An Interpreter
// is not safe for concurrent use.
type Interpreter struct {
	upgrades      fork.Scheduler
	checkpoints   *checkpoint.Manager
	broadcaster   *checkpoint.Broadcaster
	pushChainMeta bool

	phase  phase
	height abi.ChainEpoch
}

type Option func(*Interpreter)

// WithBroadcaster makes the node sign checkpoints as a validator.
func WithBroadcaster(b *checkpoint.Broadcaster) Option {
	return func(in *Interpreter) {
		in.broadcaster = b
	}
}

// WithChainMetaPush enables recording block hashes in the chain-metadata
// actor.
func WithChainMetaPush(enabled bool) Option {
	return func(in *Interpreter) {
		in.pushChainMeta = enabled
	}
}

// New returns an interpreter. A nil scheduler never upgrades.
func New(upgrades fork.Scheduler, checkpoints *checkpoint.Manager, opts ...Option) *Interpreter {
	if upgrades == nil {
		upgrades = fork.NewMockFork()
	}
	in := &Interpreter{
		upgrades:    upgrades,
		checkpoints: checkpoints,
	}
	for _, opt := range opts {
		opt(in)
	}
	log.Infow("interpreter ready", "version", constants.UserVersion(),
		"validator", in.broadcaster != nil, "pushChainMeta", in.pushChainMeta)
	return in
}

// Close stops the broadcaster, waiting for queued signatures.
func (in *Interpreter) Close() error {
	if in.broadcaster == nil {
		return nil
	}
	return in.broadcaster.Stop()
}
