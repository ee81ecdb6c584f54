package types

import (
	"bytes"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/minio/blake2b-simd"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
)

// CrossMsg is a message leaving this subnet towards its parent.
type CrossMsg struct {
	From   address.Address
	To     address.Address
	Value  abi.TokenAmount
	Nonce  uint64
	Method abi.MethodNum
	Params []byte
}

type crossMsgWire struct {
	_ struct{} `cbor:",toarray"`

	From   []byte
	To     []byte
	Value  []byte
	Nonce  uint64
	Method uint64
	Params []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (m CrossMsg) MarshalCBOR() ([]byte, error) {
	value, err := tokenBytes(m.Value)
	if err != nil {
		return nil, err
	}
	return encoding.Encode(crossMsgWire{
		From:   m.From.Bytes(),
		To:     m.To.Bytes(),
		Value:  value,
		Nonce:  m.Nonce,
		Method: uint64(m.Method),
		Params: m.Params,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (m *CrossMsg) UnmarshalCBOR(raw []byte) error {
	var w crossMsgWire
	if err := encoding.Decode(raw, &w); err != nil {
		return err
	}
	from, err := address.NewFromBytes(w.From)
	if err != nil {
		return xerrors.Errorf("decoding from address: %w", err)
	}
	to, err := address.NewFromBytes(w.To)
	if err != nil {
		return xerrors.Errorf("decoding to address: %w", err)
	}
	value, err := big.FromBytes(w.Value)
	if err != nil {
		return xerrors.Errorf("decoding value: %w", err)
	}
	*m = CrossMsg{From: from, To: to, Value: value, Nonce: w.Nonce, Method: abi.MethodNum(w.Method), Params: w.Params}
	return nil
}

// CrossMessagesCid commits to an ordered batch of outbound messages. An empty
// batch commits to the CID of an empty array.
func CrossMessagesCid(msgs []CrossMsg) (cid.Cid, error) {
	if msgs == nil {
		msgs = []CrossMsg{}
	}
	data, err := encoding.Encode(msgs)
	if err != nil {
		return cid.Undef, err
	}
	return constants.DefaultCidBuilder.Sum(data)
}

// Checkpoint is the bottom-up summary of subnet state at a height, signed by
// the validators and committed to the parent. There is at most one per height.
type Checkpoint struct {
	SubnetID    string
	BlockHeight abi.ChainEpoch
	BlockHash   []byte
	// Configuration number the parent should expect next, bumped whenever the
	// power table changes.
	NextConfigurationNumber uint64
	CrossMessagesHash       cid.Cid
}

type checkpointWire struct {
	_ struct{} `cbor:",toarray"`

	SubnetID                string
	BlockHeight             int64
	BlockHash               []byte
	NextConfigurationNumber uint64
	CrossMessagesHash       []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (cp Checkpoint) MarshalCBOR() ([]byte, error) {
	var msgsHash []byte
	if cp.CrossMessagesHash.Defined() {
		msgsHash = cp.CrossMessagesHash.Bytes()
	}
	return encoding.Encode(checkpointWire{
		SubnetID:                cp.SubnetID,
		BlockHeight:             int64(cp.BlockHeight),
		BlockHash:               cp.BlockHash,
		NextConfigurationNumber: cp.NextConfigurationNumber,
		CrossMessagesHash:       msgsHash,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (cp *Checkpoint) UnmarshalCBOR(raw []byte) error {
	var w checkpointWire
	if err := encoding.Decode(raw, &w); err != nil {
		return err
	}
	msgsHash := cid.Undef
	if len(w.CrossMessagesHash) > 0 {
		c, err := cid.Cast(w.CrossMessagesHash)
		if err != nil {
			return xerrors.Errorf("decoding cross messages hash: %w", err)
		}
		msgsHash = c
	}
	*cp = Checkpoint{
		SubnetID:                w.SubnetID,
		BlockHeight:             abi.ChainEpoch(w.BlockHeight),
		BlockHash:               w.BlockHash,
		NextConfigurationNumber: w.NextConfigurationNumber,
		CrossMessagesHash:       msgsHash,
	}
	return nil
}

// Digest is the blake2b-256 hash of the canonical encoding, which is what
// validators sign.
func (cp *Checkpoint) Digest() ([32]byte, error) {
	data, err := cp.MarshalCBOR()
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(data), nil
}

// Equals compares the fields that identify a checkpoint.
func (cp *Checkpoint) Equals(o *Checkpoint) bool {
	return cp.BlockHeight == o.BlockHeight && bytes.Equal(cp.BlockHash, o.BlockHash)
}

func (cp *Checkpoint) String() string {
	return fmt.Sprintf("Checkpoint{subnet=%s height=%d hash=%x config=%d}", cp.SubnetID, cp.BlockHeight, cp.BlockHash, cp.NextConfigurationNumber)
}
