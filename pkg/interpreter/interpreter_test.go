package interpreter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/checkpoint"
	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/crypto"
	"github.com/filecoin-project/venus-ipc/pkg/fork"
	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/interpreter"
	"github.com/filecoin-project/venus-ipc/pkg/journal"
	th "github.com/filecoin-project/venus-ipc/pkg/testhelpers"
	tf "github.com/filecoin-project/venus-ipc/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-ipc/pkg/types"
	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

const subnetID = "/root/t01002"

type env struct {
	st     *th.FakeExecState
	gw     *th.FakeGateway
	client *th.FakeClient
	vals   []*crypto.ValidatorContext
	mgr    *checkpoint.Manager
}

func newEnv(t *testing.T, period uint64) *env {
	vals := th.RequireValidators(t, 2, 42)
	gw := th.NewFakeGateway(subnetID, period, th.PowerTableOf(1, vals...))
	st := th.NewFakeExecState(1, []byte{0x01})
	gw.Install(st)
	return &env{
		st:     st,
		gw:     gw,
		client: th.NewFakeClient(gw),
		vals:   vals,
		mgr:    checkpoint.NewManager(subnetID, gateway.NewCaller()),
	}
}

func (e *env) broadcaster(vctx *crypto.ValidatorContext) *checkpoint.Broadcaster {
	j := journal.NewSubmissionJournal(dssync.MutexWrap(datastore.NewMapDatastore()), clock.NewMock(), time.Minute)
	return checkpoint.NewBroadcaster(e.client, vctx, e.mgr.Gateway(), j, checkpoint.BroadcasterConfig{
		Workers:       1,
		RetryInterval: time.Millisecond,
		GasLimit:      1_000_000,
	})
}

// runBlock executes an empty block at height.
func runBlock(t *testing.T, in *interpreter.Interpreter, st *th.FakeExecState, height abi.ChainEpoch) types.PowerUpdates {
	ctx := context.Background()
	st.Advance(height, []byte{byte(height), 0xAA})
	_, err := in.Begin(ctx, st)
	require.NoError(t, err)
	updates, err := in.End(ctx, st)
	require.NoError(t, err)
	return updates
}

func okActor(context.Context, *th.FakeExecState, *types.Message) ([]byte, exitcode.ExitCode, error) {
	return []byte{0x01}, exitcode.Ok, nil
}

func userMessage(from, to address.Address, nonce uint64) *types.Message {
	return &types.Message{
		From:       from,
		To:         to,
		Nonce:      nonce,
		Value:      big.Zero(),
		GasLimit:   10_000,
		GasFeeCap:  big.NewInt(200),
		GasPremium: big.NewInt(10),
		Method:     2,
	}
}

func TestBeginRunsCron(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()
	e := newEnv(t, 100)
	e.st.Advance(7, []byte{0x07})

	in := interpreter.New(nil, e.mgr)
	out, err := in.Begin(ctx, e.st)
	require.NoError(t, err)

	assert.Equal(t, 1, e.st.CronTicks)
	assert.Equal(t, constants.SystemActorAddr, out.From)
	assert.Equal(t, constants.CronActorAddr, out.To)
	assert.Equal(t, constants.MethodCronEpochTick, out.Method)
	assert.Equal(t, int64(constants.ImplicitMessageGasLimit), out.GasLimit)
	assert.False(t, out.ApplyRet.Failed())

	require.Len(t, e.st.Applied, 1)
	applied := e.st.Applied[0]
	assert.Equal(t, types.ExecImplicit, applied.Mode)
	assert.Equal(t, uint64(7), applied.Message.Nonce)
	// chain metadata push is off by default
	assert.Empty(t, e.st.ChainMeta)
}

func TestBeginCronFailureIsFatal(t *testing.T) {
	tf.UnitTest(t)
	e := newEnv(t, 100)
	e.st.FailActor(constants.CronActorAddr, exitcode.ErrIllegalState)

	in := interpreter.New(nil, e.mgr)
	_, err := in.Begin(context.Background(), e.st)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interpreter.ErrFatalExecution))

	var fatal *interpreter.FatalExecutionError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, exitcode.ErrIllegalState, fatal.Ret.Receipt.ExitCode)
}

func TestBeginChainMetaPush(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	t.Run("pushes known hash", func(t *testing.T) {
		e := newEnv(t, 100)
		e.st.Advance(5, []byte{0xAB})
		in := interpreter.New(nil, e.mgr, interpreter.WithChainMetaPush(true))
		_, err := in.Begin(ctx, e.st)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xAB}, e.st.ChainMeta[5])
	})

	t.Run("skipped without hash", func(t *testing.T) {
		e := newEnv(t, 100)
		e.st.Advance(5, nil)
		in := interpreter.New(nil, e.mgr, interpreter.WithChainMetaPush(true))
		_, err := in.Begin(ctx, e.st)
		require.NoError(t, err)
		assert.Empty(t, e.st.ChainMeta)
		assert.Len(t, e.st.Applied, 1)
	})

	t.Run("failure is fatal", func(t *testing.T) {
		e := newEnv(t, 100)
		e.st.FailActor(constants.ChainMetadataActorAddr, exitcode.ErrForbidden)
		in := interpreter.New(nil, e.mgr, interpreter.WithChainMetaPush(true))
		_, err := in.Begin(ctx, e.st)
		assert.True(t, errors.Is(err, interpreter.ErrFatalExecution))
	})
}

func TestBeginUpgrade(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	t.Run("sets app version", func(t *testing.T) {
		e := newEnv(t, 100)
		migrated := false
		schedule, err := fork.NewUpgradeSchedule(fork.Upgrade{
			ChainID:    e.st.Chain,
			Height:     10,
			AppVersion: 2,
			Migration: func(context.Context, vm.ExecState) error {
				migrated = true
				return nil
			},
		})
		require.NoError(t, err)
		in := interpreter.New(schedule, e.mgr)

		runBlock(t, in, e.st, 9)
		assert.Equal(t, uint64(0), e.st.Version)

		runBlock(t, in, e.st, 10)
		assert.True(t, migrated)
		assert.Equal(t, uint64(2), e.st.Version)
	})

	t.Run("failure is fatal", func(t *testing.T) {
		e := newEnv(t, 100)
		schedule, err := fork.NewUpgradeSchedule(fork.Upgrade{
			ChainID: e.st.Chain,
			Height:  10,
			Migration: func(context.Context, vm.ExecState) error {
				return xerrors.New("state root mismatch")
			},
		})
		require.NoError(t, err)
		in := interpreter.New(schedule, e.mgr)

		e.st.Advance(10, []byte{0x0A})
		_, err = in.Begin(ctx, e.st)
		assert.True(t, errors.Is(err, interpreter.ErrFatalExecution))
		var upgradeErr *fork.UpgradeError
		require.True(t, errors.As(err, &upgradeErr))
		assert.Equal(t, abi.ChainEpoch(10), upgradeErr.Height)
		assert.Equal(t, 0, e.st.CronTicks)
	})
}

func TestDeliver(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	setup := func(t *testing.T) (*env, *interpreter.Interpreter, address.Address, address.Address) {
		e := newEnv(t, 100)
		sender := th.NewForTestGetter()()
		target := th.RequireIDAddress(t, 1000)
		e.st.SetActor(target, okActor)
		e.st.Fund(sender, big.NewInt(1_000_000_000))
		e.st.Emitters[target] = types.Emitters{1000: sender}

		in := interpreter.New(nil, e.mgr)
		_, err := in.Begin(ctx, e.st)
		require.NoError(t, err)
		return e, in, sender, target
	}

	t.Run("explicit message charges gas and bumps nonce", func(t *testing.T) {
		e, in, sender, target := setup(t)
		before := e.st.Balance(sender)

		out, err := in.Deliver(ctx, e.st, userMessage(sender, target, 0), types.ExecExplicit)
		require.NoError(t, err)
		assert.Equal(t, exitcode.Ok, out.ApplyRet.Receipt.ExitCode)
		assert.Equal(t, []byte{0x01}, out.ApplyRet.Receipt.Return)
		assert.Equal(t, int64(th.GasPerCall), out.ApplyRet.Receipt.GasUsed)
		assert.Equal(t, sender, out.Emitters[1000])
		assert.Equal(t, uint64(1), e.st.Nonce(sender))
		assert.True(t, e.st.Balance(sender).LessThan(before))
	})

	t.Run("stale nonce fails in receipt", func(t *testing.T) {
		e, in, sender, target := setup(t)
		_, err := in.Deliver(ctx, e.st, userMessage(sender, target, 0), types.ExecExplicit)
		require.NoError(t, err)

		out, err := in.Deliver(ctx, e.st, userMessage(sender, target, 0), types.ExecExplicit)
		require.NoError(t, err)
		assert.True(t, out.ApplyRet.Failed())
		assert.Equal(t, exitcode.SysErrSenderStateInvalid, out.ApplyRet.Receipt.ExitCode)
		assert.Equal(t, uint64(1), e.st.Nonce(sender))
	})

	t.Run("failed user message is not fatal", func(t *testing.T) {
		e, in, sender, _ := setup(t)
		missing := th.RequireIDAddress(t, 2000)

		out, err := in.Deliver(ctx, e.st, userMessage(sender, missing, 0), types.ExecExplicit)
		require.NoError(t, err)
		assert.Equal(t, exitcode.SysErrInvalidReceiver, out.ApplyRet.Receipt.ExitCode)
	})

	t.Run("system sender skips nonce checks", func(t *testing.T) {
		e, in, _, target := setup(t)
		for i := 0; i < 2; i++ {
			msg := types.NewImplicitMessage(target, 2, nil, 0)
			out, err := in.Deliver(ctx, e.st, msg, types.ExecImplicit)
			require.NoError(t, err)
			assert.False(t, out.ApplyRet.Failed())
		}
	})

	t.Run("implicit failure is fatal", func(t *testing.T) {
		e, in, _, _ := setup(t)
		msg := types.NewImplicitMessage(th.RequireIDAddress(t, 2000), 2, nil, e.st.Height)
		_, err := in.Deliver(ctx, e.st, msg, types.ExecImplicit)
		assert.True(t, errors.Is(err, interpreter.ErrFatalExecution))
	})

	t.Run("mode must match sender", func(t *testing.T) {
		e, in, sender, target := setup(t)

		_, err := in.Deliver(ctx, e.st, userMessage(sender, target, 0), types.ExecImplicit)
		assert.True(t, errors.Is(err, interpreter.ErrExecModeMismatch))

		_, err = in.Deliver(ctx, e.st, types.NewImplicitMessage(target, 2, nil, 0), types.ExecExplicit)
		assert.True(t, errors.Is(err, interpreter.ErrExecModeMismatch))

		// nothing was executed after the cron tick
		assert.Len(t, e.st.Applied, 1)
	})
}

func TestPhaseOrder(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()
	e := newEnv(t, 100)
	in := interpreter.New(nil, e.mgr)

	_, err := in.Deliver(ctx, e.st, types.NewImplicitMessage(constants.CronActorAddr, 2, nil, 0), types.ExecImplicit)
	assert.True(t, errors.Is(err, interpreter.ErrOutOfOrder))
	_, err = in.End(ctx, e.st)
	assert.True(t, errors.Is(err, interpreter.ErrOutOfOrder))

	_, err = in.Begin(ctx, e.st)
	require.NoError(t, err)
	_, err = in.Begin(ctx, e.st)
	assert.True(t, errors.Is(err, interpreter.ErrOutOfOrder))

	// a state for another height cannot join the open block
	other := th.NewFakeExecState(e.st.Height+1, nil)
	_, err = in.End(ctx, other)
	assert.True(t, errors.Is(err, interpreter.ErrOutOfOrder))

	_, err = in.End(ctx, e.st)
	require.NoError(t, err)
	_, err = in.End(ctx, e.st)
	assert.True(t, errors.Is(err, interpreter.ErrOutOfOrder))
}

func TestFatalDeliverAbortsBlock(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()
	e := newEnv(t, 100)
	in := interpreter.New(nil, e.mgr)
	missing := th.RequireIDAddress(t, 2000)

	_, err := in.Begin(ctx, e.st)
	require.NoError(t, err)

	// a mode mismatch leaves the block open
	_, err = in.Deliver(ctx, e.st, types.NewImplicitMessage(missing, 2, nil, 0), types.ExecExplicit)
	require.True(t, errors.Is(err, interpreter.ErrExecModeMismatch))

	_, err = in.Deliver(ctx, e.st, types.NewImplicitMessage(missing, 2, nil, e.st.Height), types.ExecImplicit)
	require.True(t, errors.Is(err, interpreter.ErrFatalExecution))

	_, err = in.End(ctx, e.st)
	assert.True(t, errors.Is(err, interpreter.ErrOutOfOrder))

	// the host may re-run the same block
	_, err = in.Begin(ctx, e.st)
	require.NoError(t, err)
	_, err = in.End(ctx, e.st)
	require.NoError(t, err)

	// or abort it and move on to the next one
	e.st.Advance(2, []byte{0x02})
	_, err = in.Begin(ctx, e.st)
	require.NoError(t, err)
	in.Abort()
	runBlock(t, in, e.st, 3)
	in.Abort()

	assert.Equal(t, 4, e.st.CronTicks)
}

func TestEnd(t *testing.T) {
	tf.UnitTest(t)

	t.Run("no checkpoint due", func(t *testing.T) {
		e := newEnv(t, 100)
		in := interpreter.New(nil, e.mgr, interpreter.WithBroadcaster(e.broadcaster(e.vals[0])))
		updates := runBlock(t, in, e.st, 99)
		assert.NotNil(t, updates)
		assert.Empty(t, updates)
		require.NoError(t, in.Close())
		assert.Empty(t, e.client.Sent())
	})

	t.Run("validator signs new checkpoint", func(t *testing.T) {
		e := newEnv(t, 100)
		a := e.vals[0]
		in := interpreter.New(nil, e.mgr, interpreter.WithBroadcaster(e.broadcaster(a)))

		updates := runBlock(t, in, e.st, 100)
		assert.Empty(t, updates)
		// drain the broadcaster
		require.NoError(t, in.Close())

		assert.Equal(t, [][]byte{a.PublicKey()}, e.gw.Signatories(100))
		require.Len(t, e.client.Sent(), 1)
		assert.Equal(t, a.Address(), e.client.Sent()[0].Message.From)
	})

	t.Run("validator catches up on older checkpoints", func(t *testing.T) {
		e := newEnv(t, 100)
		a := e.vals[0]

		// checkpoint 100 is created by a node that does not sign
		runBlock(t, interpreter.New(nil, e.mgr), e.st, 100)

		in := interpreter.New(nil, e.mgr, interpreter.WithBroadcaster(e.broadcaster(a)))
		runBlock(t, in, e.st, 200)
		require.NoError(t, in.Close())

		assert.Equal(t, [][]byte{a.PublicKey()}, e.gw.Signatories(100))
		assert.Equal(t, [][]byte{a.PublicKey()}, e.gw.Signatories(200))
	})

	t.Run("syncing node does not sign", func(t *testing.T) {
		e := newEnv(t, 100)
		e.client.SetSyncing(true)
		in := interpreter.New(nil, e.mgr, interpreter.WithBroadcaster(e.broadcaster(e.vals[0])))

		runBlock(t, in, e.st, 100)
		require.NoError(t, in.Close())

		_, ok := e.gw.Checkpoint(100)
		assert.True(t, ok)
		assert.Empty(t, e.gw.Signatories(100))
	})

	t.Run("non validator only creates", func(t *testing.T) {
		e := newEnv(t, 100)
		in := interpreter.New(nil, e.mgr)

		runBlock(t, in, e.st, 100)
		require.NoError(t, in.Close())

		_, ok := e.gw.Checkpoint(100)
		assert.True(t, ok)
		assert.Empty(t, e.client.Sent())
	})

	t.Run("power updates are returned", func(t *testing.T) {
		e := newEnv(t, 100)
		in := interpreter.New(nil, e.mgr)
		e.gw.SetPowerTable(th.PowerTableOf(5, e.vals...))

		updates := runBlock(t, in, e.st, 100)
		require.Len(t, updates, 2)
		for _, u := range updates {
			assert.Equal(t, uint64(5), u.Power)
		}
	})

	t.Run("missing hash at checkpoint height fails", func(t *testing.T) {
		e := newEnv(t, 100)
		in := interpreter.New(nil, e.mgr)
		ctx := context.Background()

		e.st.Advance(100, nil)
		_, err := in.Begin(ctx, e.st)
		require.NoError(t, err)
		_, err = in.End(ctx, e.st)
		assert.True(t, errors.Is(err, checkpoint.ErrNoBlockHash))

		// the block is closed even though End failed
		e.st.Advance(101, []byte{0x01})
		_, err = in.Begin(ctx, e.st)
		assert.NoError(t, err)
	})
}
