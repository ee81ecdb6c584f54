package constants

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// BlockGasLimit is the gas limit of a single block.
const BlockGasLimit = 10_000_000_000

// ImplicitMessageGasLimit is the gas limit of system messages. Cron may do an
// arbitrary amount of work, so the limit only has to exceed any plausible cost.
const ImplicitMessageGasLimit = BlockGasLimit * 10000

// Reserved actor IDs.
const (
	SystemActorID        abi.ActorID = 0
	CronActorID          abi.ActorID = 3
	ChainMetadataActorID abi.ActorID = 48
	GatewayActorID       abi.ActorID = 64
)

var (
	// SystemActorAddr is the sender of every implicit message.
	SystemActorAddr = mustIDAddr(SystemActorID)
	// CronActorAddr receives the per-block epoch tick.
	CronActorAddr = mustIDAddr(CronActorID)
	// ChainMetadataActorAddr stores recent block hashes for on-chain lookup.
	ChainMetadataActorAddr = mustIDAddr(ChainMetadataActorID)
	// GatewayActorAddr is the IPC gateway holding checkpoints and the power table.
	GatewayActorAddr = mustIDAddr(GatewayActorID)
)

// Method numbers of the system actors called from the interpreter.
const (
	MethodCronEpochTick      abi.MethodNum = 2
	MethodChainMetaPushBlock abi.MethodNum = 2
)

// DefaultCidBuilder is the CID builder used for messages and commitments.
var DefaultCidBuilder = cid.V1Builder{Codec: cid.DagCBOR, MhType: mh.BLAKE2B_MIN + 31}

func mustIDAddr(id abi.ActorID) address.Address {
	a, err := address.NewIDAddress(uint64(id))
	if err != nil {
		panic(err)
	}
	return a
}
