package interpreter

import (
	"context"
	"errors"

	"go.opencensus.io/stats"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/checkpoint"
	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
	"github.com/filecoin-project/venus-ipc/pkg/metrics"
	"github.com/filecoin-project/venus-ipc/pkg/metrics/tracing"
	"github.com/filecoin-project/venus-ipc/pkg/types"
	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

// Begin opens the block of st: it runs the upgrade scheduled at this height,
// the cron tick and, when enabled and the hash is known, the chain-metadata
// push. It returns the output of the cron message. Any failure is fatal.
func (in *Interpreter) Begin(ctx context.Context, st vm.ExecState) (out *types.ExecOutput, err error) {
	ctx, span := trace.StartSpan(ctx, "Interpreter.Begin")
	defer tracing.AddErrorEndSpan(ctx, span, &err)

	height := st.BlockHeight()
	span.AddAttributes(trace.Int64Attribute("height", int64(height)))
	if in.phase != phaseIdle {
		return nil, xerrors.Errorf("begin at height %d while %s at height %d: %w", height, in.phase, in.height, ErrOutOfOrder)
	}
	defer metrics.Timer(metrics.WithTagValue(ctx, metrics.Phase, "begin"), metrics.PhaseDuration)()
	stats.Record(ctx, metrics.BlockHeight.M(int64(height)))

	if err := in.upgrade(ctx, st); err != nil {
		return nil, err
	}

	cron := types.NewImplicitMessage(constants.CronActorAddr, constants.MethodCronEpochTick, nil, height)
	out, err = in.applyImplicit(ctx, st, cron)
	if err != nil {
		return nil, err
	}

	if in.pushChainMeta {
		if hash, ok := st.BlockHash(); ok {
			params, err := encoding.Encode(&types.PushBlockParams{Epoch: height, BlockHash: hash})
			if err != nil {
				return nil, xerrors.Errorf("encoding chain metadata params: %w", err)
			}
			push := types.NewImplicitMessage(constants.ChainMetadataActorAddr, constants.MethodChainMetaPushBlock, params, height)
			if _, err := in.applyImplicit(ctx, st, push); err != nil {
				return nil, err
			}
		}
	}

	in.phase = phaseDelivering
	in.height = height
	return out, nil
}

func (in *Interpreter) upgrade(ctx context.Context, st vm.ExecState) error {
	chainID, height := st.ChainID(), st.BlockHeight()
	u, ok := in.upgrades.Get(chainID, height)
	if !ok {
		return nil
	}

	log.Infow("executing upgrade", "chain", chainID, "height", height)
	version, err := u.Execute(ctx, st)
	if err != nil {
		return &FatalExecutionError{Height: height, Err: err}
	}
	if version != nil {
		st.UpdateAppVersion(func(v *uint64) {
			*v = *version
		})
		log.Infow("app version updated", "chain", chainID, "height", height, "version", *version)
	}
	return nil
}

func (in *Interpreter) applyImplicit(ctx context.Context, st vm.ExecState, msg *types.Message) (*types.ExecOutput, error) {
	ret, emitters, err := st.ExecuteImplicit(ctx, msg)
	if err != nil {
		return nil, &FatalExecutionError{Height: st.BlockHeight(), Err: err}
	}
	in.record(ctx, st, msg, types.ExecImplicit, &ret)
	if ret.Failed() {
		return nil, &FatalExecutionError{Height: st.BlockHeight(), Msg: msg, Ret: &ret}
	}
	return types.NewExecOutput(msg, ret, emitters), nil
}

// Deliver applies one message of the block. The mode must be implicit iff
// the sender is the system actor. A failed explicit message is reported in
// the receipt only; a failed implicit message is fatal and aborts the block.
func (in *Interpreter) Deliver(ctx context.Context, st vm.ExecState, msg *types.Message, mode types.ExecMode) (out *types.ExecOutput, err error) {
	ctx, span := trace.StartSpan(ctx, "Interpreter.Deliver")
	defer tracing.AddErrorEndSpan(ctx, span, &err)
	span.AddAttributes(trace.StringAttribute("mode", mode.String()))

	height := st.BlockHeight()
	if in.phase != phaseDelivering || height != in.height {
		return nil, xerrors.Errorf("deliver at height %d while %s at height %d: %w", height, in.phase, in.height, ErrOutOfOrder)
	}
	if expected := types.ExecModeOf(msg); expected != mode {
		return nil, xerrors.Errorf("message from %s delivered as %s, must be %s: %w", msg.From, mode, expected, ErrExecModeMismatch)
	}
	defer metrics.Timer(metrics.WithTagValue(ctx, metrics.Phase, "deliver"), metrics.PhaseDuration)()
	// a fatal error abandons the block, the host re-runs it from Begin
	defer func() {
		if errors.Is(err, ErrFatalExecution) {
			in.Abort()
		}
	}()

	if mode == types.ExecImplicit {
		return in.applyImplicit(ctx, st, msg)
	}

	ret, emitters, err := vm.Execute(ctx, st, msg, mode)
	if err != nil {
		return nil, &FatalExecutionError{Height: height, Err: err}
	}
	in.record(ctx, st, msg, mode, &ret)
	return types.NewExecOutput(msg, ret, emitters), nil
}

// Abort abandons the block being delivered so that the next Begin, at the
// same or any other height, is accepted. It is a no-op between blocks.
func (in *Interpreter) Abort() {
	if in.phase == phaseIdle {
		return
	}
	log.Warnw("block aborted", "height", in.height)
	in.phase = phaseIdle
}

func (in *Interpreter) record(ctx context.Context, st vm.ExecState, msg *types.Message, mode types.ExecMode, ret *types.ApplyRet) {
	ctx = metrics.WithTagValue(ctx, metrics.ExecMode, mode.String())
	metrics.RecordInc(ctx, metrics.MessagesDelivered)
	stats.Record(ctx, metrics.GasUsed.M(ret.Receipt.GasUsed))

	if ret.Failed() {
		metrics.RecordInc(ctx, metrics.MessagesFailed)
		log.Infow("message failed", "height", st.BlockHeight(), "mode", mode, "from", msg.From, "to", msg.To,
			"method", msg.Method, "exitCode", ret.Receipt.ExitCode, "gasUsed", ret.Receipt.GasUsed, "info", ret.FailureInfo)
		return
	}
	log.Debugw("message applied", "height", st.BlockHeight(), "mode", mode, "from", msg.From, "to", msg.To,
		"method", msg.Method, "exitCode", ret.Receipt.ExitCode, "gasUsed", ret.Receipt.GasUsed)
}

// End closes the block. When a checkpoint is due it is created and, on a
// validator that is not syncing, the signatures this validator still owes
// are handed to the broadcaster. It returns the validator power changes
// the checkpoint carries, empty when none was created.
func (in *Interpreter) End(ctx context.Context, st vm.ExecState) (updates types.PowerUpdates, err error) {
	ctx, span := trace.StartSpan(ctx, "Interpreter.End")
	defer tracing.AddErrorEndSpan(ctx, span, &err)

	height := st.BlockHeight()
	if in.phase != phaseDelivering || height != in.height {
		return nil, xerrors.Errorf("end at height %d while %s at height %d: %w", height, in.phase, in.height, ErrOutOfOrder)
	}
	in.phase = phaseIdle
	defer metrics.Timer(metrics.WithTagValue(ctx, metrics.Phase, "end"), metrics.PhaseDuration)()

	cp, updates, err := in.checkpoints.MaybeCreateCheckpoint(ctx, st)
	if err != nil {
		return nil, err
	}
	if updates == nil {
		updates = types.PowerUpdates{}
	}
	if cp == nil || in.broadcaster == nil {
		return updates, nil
	}

	if err := in.dispatchSignatures(ctx, st, cp); err != nil {
		return nil, err
	}
	return updates, nil
}

func (in *Interpreter) dispatchSignatures(ctx context.Context, st vm.ExecState, cp *types.Checkpoint) error {
	height := st.BlockHeight()
	syncing, err := in.broadcaster.Client().Syncing(ctx)
	if err != nil {
		log.Warnw("failed to read sync status, not signing checkpoints", "height", height, "error", err)
		return nil
	}
	if syncing {
		log.Debugw("node is syncing, not signing checkpoints", "height", height)
		return nil
	}

	unsigned, err := in.checkpoints.UnsignedCheckpoints(ctx, st, in.broadcaster.Validator().PublicKey())
	if err != nil {
		return xerrors.Errorf("listing unsigned checkpoints: %w", err)
	}
	if !checkpoint.Contains(unsigned, cp) {
		invariantViolations.Inc(ctx, 1)
		log.Errorw("created checkpoint is not among the unsigned checkpoints", "height", height, "checkpoint", cp.String())
	}
	if len(unsigned) == 0 {
		return nil
	}
	in.broadcaster.Dispatch(height, unsigned)
	return nil
}
