package gateway

import (
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/venus-ipc/pkg/types"
)

// Methods of the gateway actor.
var Methods = struct {
	Constructor              abi.MethodNum
	BottomUpCheckPeriod      abi.MethodNum
	CurrentPowerTable        abi.MethodNum
	CheckpointPowerTable     abi.MethodNum
	BottomUpCheckpoint       abi.MethodNum
	PendingBottomUpMessages  abi.MethodNum
	CreateBottomUpCheckpoint abi.MethodNum
	IncompleteCheckpoints    abi.MethodNum
	AddCheckpointSignature   abi.MethodNum
}{1, 2, 3, 4, 5, 6, 7, 8, 9}

type CheckPeriodReturn struct {
	_ struct{} `cbor:",toarray"`

	Period uint64
}

// PowerTableReturn is a power table together with the configuration number
// it was recorded under.
type PowerTableReturn struct {
	_ struct{} `cbor:",toarray"`

	ConfigurationNumber uint64
	Validators          []types.Validator
}

type BottomUpCheckpointParams struct {
	_ struct{} `cbor:",toarray"`

	Height int64
}

type BottomUpCheckpointReturn struct {
	_ struct{} `cbor:",toarray"`

	Found      bool
	Checkpoint types.Checkpoint
}

type PendingBottomUpMessagesReturn struct {
	_ struct{} `cbor:",toarray"`

	Messages []types.CrossMsg
}

// CreateBottomUpCheckpointParams records a checkpoint and snapshots the power
// table it was created under, which the next checkpoint is diffed against.
type CreateBottomUpCheckpointParams struct {
	_ struct{} `cbor:",toarray"`

	Checkpoint types.Checkpoint
	PowerTable []types.Validator
}

// IncompleteCheckpoint is a checkpoint in the open commit window that has not
// gathered a quorum of signatures yet.
type IncompleteCheckpoint struct {
	_ struct{} `cbor:",toarray"`

	Checkpoint types.Checkpoint
	// Public keys of the validators that already signed.
	Signatories [][]byte
}

type IncompleteCheckpointsReturn struct {
	_ struct{} `cbor:",toarray"`

	Checkpoints []IncompleteCheckpoint
}

type AddCheckpointSignatureParams struct {
	_ struct{} `cbor:",toarray"`

	Height    int64
	PublicKey []byte
	Signature []byte
}
