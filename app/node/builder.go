package node

import (
	"context"
	"time"

	"github.com/filecoin-project/go-jsonrpc"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/checkpoint"
	"github.com/filecoin-project/venus-ipc/pkg/config"
	"github.com/filecoin-project/venus-ipc/pkg/crypto"
	"github.com/filecoin-project/venus-ipc/pkg/fork"
	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/interpreter"
	"github.com/filecoin-project/venus-ipc/pkg/journal"
	"github.com/filecoin-project/venus-ipc/pkg/net"
)

var log = logging.Logger("node")

// Builder is a helper to aid in the construction of a subnet node.
type Builder struct {
	cfg      *config.Config
	upgrades fork.Scheduler
	client   net.Client
}

// BuilderOpt is an option for building a subnet node.
type BuilderOpt func(*Builder) error

// Upgrades sets the upgrade schedule.
func Upgrades(s fork.Scheduler) BuilderOpt {
	return func(b *Builder) error {
		b.upgrades = s
		return nil
	}
}

// Client uses c instead of dialing the configured node API.
func Client(c net.Client) BuilderOpt {
	return func(b *Builder) error {
		b.client = c
		return nil
	}
}

// New creates a new node builder.
func New(cfg *config.Config, opts ...BuilderOpt) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid config: %w", err)
	}
	b := &Builder{cfg: cfg}
	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Build assembles the interpreter. A validator key turns on signing, which
// needs the node API and the submission journal.
func (b *Builder) Build(ctx context.Context) (*Node, error) {
	cpCfg := b.cfg.Checkpoint
	nd := &Node{
		checkpoints: checkpoint.NewManager(cpCfg.SubnetID, gateway.NewCaller()),
	}

	opts := []interpreter.Option{interpreter.WithChainMetaPush(b.cfg.Interpreter.PushChainMeta)}
	if cpCfg.ValidatorKeyPath != "" {
		broadcaster, err := b.buildBroadcaster(ctx, nd)
		if err != nil {
			nd.closeRPC()
			return nil, err
		}
		opts = append(opts, interpreter.WithBroadcaster(broadcaster))
	}

	nd.interpreter = interpreter.New(b.upgrades, nd.checkpoints, opts...)
	log.Infow("subnet node built", "subnet", cpCfg.SubnetID, "validator", cpCfg.ValidatorKeyPath != "")
	return nd, nil
}

func (b *Builder) buildBroadcaster(ctx context.Context, nd *Node) (*checkpoint.Broadcaster, error) {
	cpCfg := b.cfg.Checkpoint

	validator, err := crypto.LoadValidatorContext(cpCfg.ValidatorKeyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "loading validator key %s", cpCfg.ValidatorKeyPath)
	}
	feeCap, err := cpCfg.FeeCap()
	if err != nil {
		return nil, err
	}
	premium, err := cpCfg.Premium()
	if err != nil {
		return nil, err
	}
	maxFee, err := cpCfg.MaxSignatureFee()
	if err != nil {
		return nil, err
	}

	client := b.client
	if client == nil {
		var closer jsonrpc.ClientCloser
		client, closer, err = net.NewClient(ctx, net.NewAPIInfo(b.cfg.RPC.Address, b.cfg.RPC.Token))
		if err != nil {
			return nil, err
		}
		nd.rpcCloser = closer
	}

	j, err := journal.OpenSubmissionJournal(cpCfg.JournalPath, time.Duration(cpCfg.ResubmitInterval))
	if err != nil {
		return nil, err
	}

	log.Infow("checkpoint signing enabled", "validator", validator.Address())
	return checkpoint.NewBroadcaster(client, validator, nd.checkpoints.Gateway(), j, checkpoint.BroadcasterConfig{
		Workers:       cpCfg.Workers,
		SubmitRetries: cpCfg.SubmitRetries,
		RetryInterval: time.Duration(cpCfg.RetryInterval),
		GasLimit:      cpCfg.GasLimit,
		GasFeeCap:     feeCap,
		GasPremium:    premium,
		MaxFee:        maxFee,
	}), nil
}
