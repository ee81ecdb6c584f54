package types

import "github.com/filecoin-project/go-state-types/abi"

// PushBlockParams records the hash of the block at Epoch in the
// chain-metadata actor.
type PushBlockParams struct {
	_         struct{} `cbor:",toarray"`
	Epoch     abi.ChainEpoch
	BlockHash []byte
}
