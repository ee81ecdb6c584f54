package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/metrics"
	"github.com/filecoin-project/venus-ipc/pkg/types"
	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

var log = logging.Logger("checkpoint")

var (
	// ErrNoBlockHash is returned when a checkpoint is due but the hash of the
	// block is not known.
	ErrNoBlockHash = errors.New("block hash unavailable")
	// ErrPowerTable is returned when a power table could not be read from the
	// gateway.
	ErrPowerTable = errors.New("power table unavailable")
)

// ConstructionError reports a checkpoint that was due but could not be built.
// It matches ErrNoBlockHash or ErrPowerTable with errors.Is.
type ConstructionError struct {
	Height abi.ChainEpoch
	Kind   error
	Cause  error
}

func (e *ConstructionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("constructing checkpoint at height %d: %s", e.Height, e.Kind)
	}
	return fmt.Sprintf("constructing checkpoint at height %d: %s: %s", e.Height, e.Kind, e.Cause)
}

func (e *ConstructionError) Unwrap() error {
	return e.Kind
}

// IsCheckpointHeight reports whether a checkpoint is due at height. A zero
// period disables checkpointing.
func IsCheckpointHeight(height abi.ChainEpoch, period uint64) bool {
	return period > 0 && height > 0 && uint64(height)%period == 0
}

// Manager creates the bottom-up checkpoints of a subnet.
type Manager struct {
	subnetID string
	gw       *gateway.Caller
}

func NewManager(subnetID string, gw *gateway.Caller) *Manager {
	return &Manager{subnetID: subnetID, gw: gw}
}

func (m *Manager) Gateway() *gateway.Caller {
	return m.gw
}

// MaybeCreateCheckpoint records a checkpoint in the gateway if one is due at
// the current height and not recorded yet. It returns the new checkpoint and
// the validator power changes since the previous one, or nothing when no
// checkpoint was created.
func (m *Manager) MaybeCreateCheckpoint(ctx context.Context, st vm.ExecState) (*types.Checkpoint, types.PowerUpdates, error) {
	ctx, span := trace.StartSpan(ctx, "Manager.MaybeCreateCheckpoint")
	defer span.End()

	height := st.BlockHeight()
	period, err := m.gw.BottomUpCheckPeriod(ctx, st)
	if err != nil {
		return nil, nil, xerrors.Errorf("reading checkpoint period: %w", err)
	}
	if !IsCheckpointHeight(height, period) {
		return nil, nil, nil
	}
	span.AddAttributes(trace.Int64Attribute("height", int64(height)))

	hash, ok := st.BlockHash()
	if !ok {
		return nil, nil, &ConstructionError{Height: height, Kind: ErrNoBlockHash}
	}

	if _, found, err := m.gw.BottomUpCheckpoint(ctx, st, height); err != nil {
		return nil, nil, xerrors.Errorf("looking up checkpoint at height %d: %w", height, err)
	} else if found {
		log.Debugw("checkpoint already recorded", "height", height)
		return nil, nil, nil
	}

	curr, err := m.gw.CurrentPowerTable(ctx, st)
	if err != nil {
		return nil, nil, &ConstructionError{Height: height, Kind: ErrPowerTable, Cause: err}
	}
	prev, err := m.gw.CheckpointPowerTable(ctx, st)
	if err != nil {
		return nil, nil, &ConstructionError{Height: height, Kind: ErrPowerTable, Cause: err}
	}
	updates := types.DiffPowerTables(prev.Validators, curr.Validators)

	msgs, err := m.gw.PendingBottomUpMessages(ctx, st)
	if err != nil {
		return nil, nil, xerrors.Errorf("reading pending bottom-up messages: %w", err)
	}
	msgsCid, err := types.CrossMessagesCid(msgs)
	if err != nil {
		return nil, nil, xerrors.Errorf("hashing bottom-up messages: %w", err)
	}

	cp := &types.Checkpoint{
		SubnetID:                m.subnetID,
		BlockHeight:             height,
		BlockHash:               append([]byte(nil), hash...),
		NextConfigurationNumber: curr.ConfigurationNumber,
		CrossMessagesHash:       msgsCid,
	}
	if err := m.gw.CreateBottomUpCheckpoint(ctx, st, cp, curr.Validators); err != nil {
		return nil, nil, xerrors.Errorf("recording checkpoint at height %d: %w", height, err)
	}

	metrics.RecordInc(ctx, metrics.CheckpointsCreated)
	log.Infow("created checkpoint", "height", height, "hash", fmt.Sprintf("%x", hash),
		"messages", len(msgs), "powerUpdates", len(updates), "configurationNumber", cp.NextConfigurationNumber)
	return cp, updates, nil
}

// UnsignedCheckpoints returns the checkpoints still collecting signatures
// that pubKey has not signed, in height order.
func (m *Manager) UnsignedCheckpoints(ctx context.Context, st vm.ExecState, pubKey []byte) ([]types.Checkpoint, error) {
	return UnsignedCheckpoints(ctx, m.gw, st, pubKey)
}
