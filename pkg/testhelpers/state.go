package testhelpers

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
	"github.com/filecoin-project/venus-ipc/pkg/types"
	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

// GasPerCall is what the fake executor charges for any actor invocation.
const GasPerCall = 1000

// ActorFunc implements a fake actor. Returning a non-zero exit code fails the
// message; returning an error fails the executor.
type ActorFunc func(ctx context.Context, st *FakeExecState, msg *types.Message) ([]byte, exitcode.ExitCode, error)

// AppliedMessage is a message the fake executor ran.
type AppliedMessage struct {
	Message types.Message
	Mode    types.ExecMode
	Ret     types.ApplyRet
}

type account struct {
	nonce   uint64
	balance abi.TokenAmount
}

// FakeExecState is an in-memory vm.ExecState. It runs registered actor
// functions and keeps account nonces and balances for explicit messages.
type FakeExecState struct {
	Height  abi.ChainEpoch
	Hash    []byte
	Chain   uint64
	Version uint64
	BaseFee abi.TokenAmount

	// Emitters returned for messages sent to an actor.
	Emitters map[address.Address]types.Emitters
	// Applied lists every executed message in order.
	Applied []AppliedMessage
	// CronTicks counts successful cron epoch ticks.
	CronTicks int
	// ChainMeta holds the block hashes pushed to the chain-metadata actor.
	ChainMeta map[abi.ChainEpoch][]byte

	actors   map[address.Address]ActorFunc
	accounts map[address.Address]*account
}

var _ vm.ExecState = (*FakeExecState)(nil)

// NewFakeExecState returns a state at height with the cron and chain-metadata
// actors installed. A nil hash means the block hash is unknown.
func NewFakeExecState(height abi.ChainEpoch, hash []byte) *FakeExecState {
	st := &FakeExecState{
		Height:    height,
		Hash:      hash,
		BaseFee:   big.NewInt(100),
		Emitters:  make(map[address.Address]types.Emitters),
		ChainMeta: make(map[abi.ChainEpoch][]byte),
		actors:    make(map[address.Address]ActorFunc),
		accounts:  make(map[address.Address]*account),
	}
	st.SetActor(constants.CronActorAddr, cronActor)
	st.SetActor(constants.ChainMetadataActorAddr, chainMetaActor)
	return st
}

// Advance moves the state to the next block, keeping actors and accounts.
func (st *FakeExecState) Advance(height abi.ChainEpoch, hash []byte) {
	st.Height = height
	st.Hash = hash
}

// SetActor installs f at addr.
func (st *FakeExecState) SetActor(addr address.Address, f ActorFunc) {
	st.actors[addr] = f
}

// FailActor makes every call to addr exit with code.
func (st *FakeExecState) FailActor(addr address.Address, code exitcode.ExitCode) {
	st.actors[addr] = func(context.Context, *FakeExecState, *types.Message) ([]byte, exitcode.ExitCode, error) {
		return nil, code, nil
	}
}

// Fund credits an account, creating it if needed.
func (st *FakeExecState) Fund(addr address.Address, amount abi.TokenAmount) {
	acc := st.account(addr)
	acc.balance = big.Add(acc.balance, amount)
}

// Nonce is the next expected nonce of addr.
func (st *FakeExecState) Nonce(addr address.Address) uint64 {
	return st.account(addr).nonce
}

// Balance of addr.
func (st *FakeExecState) Balance(addr address.Address) abi.TokenAmount {
	return st.account(addr).balance
}

func (st *FakeExecState) account(addr address.Address) *account {
	acc, ok := st.accounts[addr]
	if !ok {
		acc = &account{balance: big.Zero()}
		st.accounts[addr] = acc
	}
	return acc
}

func (st *FakeExecState) ExecuteImplicit(ctx context.Context, msg *types.Message) (types.ApplyRet, types.Emitters, error) {
	ret, err := st.invoke(ctx, msg)
	if err != nil {
		return types.ApplyRet{}, nil, err
	}
	st.Applied = append(st.Applied, AppliedMessage{Message: *msg, Mode: types.ExecImplicit, Ret: ret})
	return ret, st.Emitters[msg.To], nil
}

func (st *FakeExecState) ExecuteExplicit(ctx context.Context, msg *types.Message) (types.ApplyRet, types.Emitters, error) {
	acc := st.account(msg.From)
	if msg.Nonce != acc.nonce {
		ret := failed(exitcode.SysErrSenderStateInvalid, "actor nonce invalid: msg:%d != state:%d", msg.Nonce, acc.nonce)
		st.Applied = append(st.Applied, AppliedMessage{Message: *msg, Mode: types.ExecExplicit, Ret: ret})
		return ret, nil, nil
	}
	if acc.balance.LessThan(msg.RequiredFunds()) {
		ret := failed(exitcode.SysErrSenderStateInvalid, "actor balance less than needed: %s < %s", acc.balance, msg.RequiredFunds())
		st.Applied = append(st.Applied, AppliedMessage{Message: *msg, Mode: types.ExecExplicit, Ret: ret})
		return ret, nil, nil
	}

	var ret types.ApplyRet
	gasUsed := int64(GasPerCall)
	if msg.GasLimit < gasUsed {
		gasUsed = msg.GasLimit
		ret = failed(exitcode.SysErrOutOfGas, "not enough gas: limit %d", msg.GasLimit)
	} else {
		var err error
		if ret, err = st.invoke(ctx, msg); err != nil {
			return types.ApplyRet{}, nil, err
		}
	}
	ret.Receipt.GasUsed = gasUsed

	out := ComputeGasOutputs(gasUsed, msg.GasLimit, st.BaseFee, msg.GasFeeCap, msg.GasPremium)
	acc.balance = big.Sub(acc.balance, out.GasCost)
	acc.nonce++

	st.Applied = append(st.Applied, AppliedMessage{Message: *msg, Mode: types.ExecExplicit, Ret: ret})
	return ret, st.Emitters[msg.To], nil
}

func (st *FakeExecState) invoke(ctx context.Context, msg *types.Message) (types.ApplyRet, error) {
	actor, ok := st.actors[msg.To]
	if !ok {
		return failed(exitcode.SysErrInvalidReceiver, "actor %s not found", msg.To), nil
	}
	ret, code, err := actor(ctx, st, msg)
	if err != nil {
		return types.ApplyRet{}, err
	}
	if code != exitcode.Ok {
		return failed(code, "actor %s method %d aborted", msg.To, msg.Method), nil
	}
	return types.ApplyRet{Receipt: types.MessageReceipt{ExitCode: exitcode.Ok, Return: ret}}, nil
}

func failed(code exitcode.ExitCode, format string, args ...interface{}) types.ApplyRet {
	return types.ApplyRet{
		Receipt:     types.MessageReceipt{ExitCode: code},
		FailureInfo: fmt.Sprintf(format, args...),
	}
}

func (st *FakeExecState) BlockHeight() abi.ChainEpoch {
	return st.Height
}

func (st *FakeExecState) BlockHash() ([]byte, bool) {
	return st.Hash, st.Hash != nil
}

func (st *FakeExecState) ChainID() uint64 {
	return st.Chain
}

func (st *FakeExecState) AppVersion() uint64 {
	return st.Version
}

func (st *FakeExecState) UpdateAppVersion(f func(*uint64)) {
	f(&st.Version)
}

func cronActor(_ context.Context, st *FakeExecState, msg *types.Message) ([]byte, exitcode.ExitCode, error) {
	if msg.Method != constants.MethodCronEpochTick {
		return nil, exitcode.SysErrInvalidMethod, nil
	}
	st.CronTicks++
	return nil, exitcode.Ok, nil
}

func chainMetaActor(_ context.Context, st *FakeExecState, msg *types.Message) ([]byte, exitcode.ExitCode, error) {
	if msg.Method != constants.MethodChainMetaPushBlock {
		return nil, exitcode.SysErrInvalidMethod, nil
	}
	var params types.PushBlockParams
	if err := encoding.Decode(msg.Params, &params); err != nil {
		return nil, exitcode.ErrSerialization, nil
	}
	st.ChainMeta[params.Epoch] = params.BlockHash
	return nil, exitcode.Ok, nil
}
