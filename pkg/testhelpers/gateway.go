package testhelpers

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/crypto"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/types"
)

type checkpointEntry struct {
	checkpoint  types.Checkpoint
	signatories [][]byte
}

// FakeGateway is an in-memory gateway actor. A checkpoint stays incomplete
// until validators holding more than two thirds of the checkpoint power table
// have signed it.
//
// Signatures may arrive from a broadcaster goroutine through FakeClient while
// the test reads state, so all access is locked.
type FakeGateway struct {
	lk sync.Mutex

	subnetID     string
	period       uint64
	configNumber uint64
	current      types.PowerTable

	// Table and configuration snapshotted by the last checkpoint, initially
	// the genesis validators.
	checkpointConfig uint64
	checkpointTable  types.PowerTable

	checkpoints map[abi.ChainEpoch]*checkpointEntry
	pending     []types.CrossMsg
	failures    map[abi.MethodNum]exitcode.ExitCode
}

// NewFakeGateway returns a gateway of subnetID checkpointing every period
// blocks with genesis as the initial validator set.
func NewFakeGateway(subnetID string, period uint64, genesis types.PowerTable) *FakeGateway {
	return &FakeGateway{
		subnetID:        subnetID,
		period:          period,
		current:         genesis,
		checkpointTable: genesis,
		checkpoints:     make(map[abi.ChainEpoch]*checkpointEntry),
		failures:        make(map[abi.MethodNum]exitcode.ExitCode),
	}
}

// Install registers the gateway as the actor at the reserved address.
func (g *FakeGateway) Install(st *FakeExecState) {
	st.SetActor(gateway.NewCaller().Address(), g.Invoke)
}

// SetPowerTable replaces the current validator set and bumps the
// configuration number.
func (g *FakeGateway) SetPowerTable(pt types.PowerTable) {
	g.lk.Lock()
	defer g.lk.Unlock()
	g.current = pt
	g.configNumber++
}

// AddPending queues an outbound cross message.
func (g *FakeGateway) AddPending(msg types.CrossMsg) {
	g.lk.Lock()
	defer g.lk.Unlock()
	g.pending = append(g.pending, msg)
}

// FailMethod makes calls to method exit with code.
func (g *FakeGateway) FailMethod(method abi.MethodNum, code exitcode.ExitCode) {
	g.lk.Lock()
	defer g.lk.Unlock()
	g.failures[method] = code
}

// Checkpoint returns the checkpoint recorded at height.
func (g *FakeGateway) Checkpoint(height abi.ChainEpoch) (*types.Checkpoint, bool) {
	g.lk.Lock()
	defer g.lk.Unlock()
	e, ok := g.checkpoints[height]
	if !ok {
		return nil, false
	}
	cp := e.checkpoint
	return &cp, true
}

// Signatories returns the public keys that signed the checkpoint at height.
func (g *FakeGateway) Signatories(height abi.ChainEpoch) [][]byte {
	g.lk.Lock()
	defer g.lk.Unlock()
	e, ok := g.checkpoints[height]
	if !ok {
		return nil
	}
	return append([][]byte(nil), e.signatories...)
}

// Invoke implements ActorFunc.
func (g *FakeGateway) Invoke(_ context.Context, _ *FakeExecState, msg *types.Message) ([]byte, exitcode.ExitCode, error) {
	g.lk.Lock()
	defer g.lk.Unlock()

	if code, ok := g.failures[msg.Method]; ok {
		return nil, code, nil
	}

	var ret interface{}
	switch msg.Method {
	case gateway.Methods.BottomUpCheckPeriod:
		ret = &gateway.CheckPeriodReturn{Period: g.period}
	case gateway.Methods.CurrentPowerTable:
		ret = &gateway.PowerTableReturn{ConfigurationNumber: g.configNumber, Validators: g.current}
	case gateway.Methods.CheckpointPowerTable:
		ret = &gateway.PowerTableReturn{ConfigurationNumber: g.checkpointConfig, Validators: g.checkpointTable}
	case gateway.Methods.BottomUpCheckpoint:
		var params gateway.BottomUpCheckpointParams
		if err := encoding.Decode(msg.Params, &params); err != nil {
			return nil, exitcode.ErrSerialization, nil
		}
		r := &gateway.BottomUpCheckpointReturn{}
		if e, ok := g.checkpoints[abi.ChainEpoch(params.Height)]; ok {
			r.Found = true
			r.Checkpoint = e.checkpoint
		}
		ret = r
	case gateway.Methods.PendingBottomUpMessages:
		ret = &gateway.PendingBottomUpMessagesReturn{Messages: g.pending}
	case gateway.Methods.CreateBottomUpCheckpoint:
		var params gateway.CreateBottomUpCheckpointParams
		if err := encoding.Decode(msg.Params, &params); err != nil {
			return nil, exitcode.ErrSerialization, nil
		}
		if params.Checkpoint.SubnetID != g.subnetID {
			return nil, exitcode.ErrIllegalArgument, nil
		}
		if _, ok := g.checkpoints[params.Checkpoint.BlockHeight]; ok {
			return nil, exitcode.ErrIllegalState, nil
		}
		g.checkpoints[params.Checkpoint.BlockHeight] = &checkpointEntry{checkpoint: params.Checkpoint}
		g.checkpointTable = params.PowerTable
		g.checkpointConfig = params.Checkpoint.NextConfigurationNumber
		g.pending = nil
		return nil, exitcode.Ok, nil
	case gateway.Methods.IncompleteCheckpoints:
		ret = &gateway.IncompleteCheckpointsReturn{Checkpoints: g.incomplete()}
	case gateway.Methods.AddCheckpointSignature:
		var params gateway.AddCheckpointSignatureParams
		if err := encoding.Decode(msg.Params, &params); err != nil {
			return nil, exitcode.ErrSerialization, nil
		}
		if err := g.addSignature(msg.From, &params); err != nil {
			return nil, exitcode.ErrIllegalArgument, nil
		}
		return nil, exitcode.Ok, nil
	default:
		return nil, exitcode.SysErrInvalidMethod, nil
	}

	raw, err := encoding.Encode(ret)
	if err != nil {
		return nil, 0, err
	}
	return raw, exitcode.Ok, nil
}

// AddSignature applies an AddCheckpointSignature call sent by from.
func (g *FakeGateway) AddSignature(from address.Address, params *gateway.AddCheckpointSignatureParams) error {
	g.lk.Lock()
	defer g.lk.Unlock()
	return g.addSignature(from, params)
}

func (g *FakeGateway) addSignature(from address.Address, params *gateway.AddCheckpointSignatureParams) error {
	e, ok := g.checkpoints[abi.ChainEpoch(params.Height)]
	if !ok {
		return xerrors.Errorf("no checkpoint at height %d", params.Height)
	}
	sender, err := address.NewSecp256k1Address(params.PublicKey)
	if err != nil {
		return err
	}
	if sender != from {
		return xerrors.Errorf("public key does not belong to sender %s", from)
	}
	if g.checkpointTable.PowerOf(params.PublicKey) == 0 {
		return xerrors.Errorf("%x is not a validator", params.PublicKey)
	}
	for _, s := range e.signatories {
		if bytes.Equal(s, params.PublicKey) {
			return xerrors.Errorf("%x already signed checkpoint %d", params.PublicKey, params.Height)
		}
	}
	digest, err := e.checkpoint.Digest()
	if err != nil {
		return err
	}
	sig := crypto.Signature{Type: crypto.SigTypeSecp256k1, Data: params.Signature}
	if err := crypto.Verify(digest[:], params.PublicKey, sig); err != nil {
		return xerrors.Errorf("invalid checkpoint signature: %w", err)
	}
	e.signatories = append(e.signatories, params.PublicKey)
	return nil
}

func (g *FakeGateway) incomplete() []gateway.IncompleteCheckpoint {
	var total uint64
	for _, v := range g.checkpointTable {
		total += v.Power
	}

	var out []gateway.IncompleteCheckpoint
	for _, e := range g.checkpoints {
		var signed uint64
		for _, s := range e.signatories {
			signed += g.checkpointTable.PowerOf(s)
		}
		if total > 0 && signed*3 > total*2 {
			continue
		}
		out = append(out, gateway.IncompleteCheckpoint{
			Checkpoint:  e.checkpoint,
			Signatories: append([][]byte(nil), e.signatories...),
		})
	}
	// Newest first.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Checkpoint.BlockHeight > out[j].Checkpoint.BlockHeight
	})
	return out
}
