package types

import (
	"encoding/json"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	errPkg "github.com/pkg/errors"

	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
)

const MessageVersion = 0

// Message is a call against VM state, modeled as a function call from one
// actor to another.
type Message struct {
	Version uint64 `json:"version"`

	To   address.Address `json:"to"`
	From address.Address `json:"from"`
	// When receiving a message from a user account the nonce in
	// the message must match the expected nonce in the from actor.
	// This prevents replay attacks.
	Nonce uint64 `json:"nonce"`

	Value abi.TokenAmount `json:"value"`

	GasLimit   int64           `json:"gasLimit"`
	GasFeeCap  abi.TokenAmount `json:"gasFeeCap"`
	GasPremium abi.TokenAmount `json:"gasPremium"`

	Method abi.MethodNum `json:"method"`
	Params []byte        `json:"params"`
}

// NewImplicitMessage builds a message sent by the system actor. Such messages
// skip nonce and fee checks, so they must only ever be constructed by the node.
func NewImplicitMessage(to address.Address, method abi.MethodNum, params []byte, height abi.ChainEpoch) *Message {
	return &Message{
		Version:    MessageVersion,
		From:       constants.SystemActorAddr,
		To:         to,
		Nonce:      uint64(height),
		Value:      big.Zero(),
		GasLimit:   constants.ImplicitMessageGasLimit,
		GasFeeCap:  big.Zero(),
		GasPremium: big.Zero(),
		Method:     method,
		Params:     params,
	}
}

// RequiredFunds is the maximum the sender can be charged for gas.
func (msg *Message) RequiredFunds() big.Int {
	return big.Mul(tokenOrZero(msg.GasFeeCap), big.NewInt(msg.GasLimit))
}

// messageWire is the canonical array encoding of a Message.
type messageWire struct {
	_ struct{} `cbor:",toarray"`

	Version    uint64
	To         []byte
	From       []byte
	Nonce      uint64
	Value      []byte
	GasLimit   int64
	GasFeeCap  []byte
	GasPremium []byte
	Method     uint64
	Params     []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (msg Message) MarshalCBOR() ([]byte, error) {
	value, err := tokenBytes(msg.Value)
	if err != nil {
		return nil, err
	}
	feeCap, err := tokenBytes(msg.GasFeeCap)
	if err != nil {
		return nil, err
	}
	premium, err := tokenBytes(msg.GasPremium)
	if err != nil {
		return nil, err
	}
	return encoding.Encode(messageWire{
		Version:    msg.Version,
		To:         msg.To.Bytes(),
		From:       msg.From.Bytes(),
		Nonce:      msg.Nonce,
		Value:      value,
		GasLimit:   msg.GasLimit,
		GasFeeCap:  feeCap,
		GasPremium: premium,
		Method:     uint64(msg.Method),
		Params:     msg.Params,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (msg *Message) UnmarshalCBOR(raw []byte) error {
	var w messageWire
	if err := encoding.Decode(raw, &w); err != nil {
		return err
	}
	to, err := address.NewFromBytes(w.To)
	if err != nil {
		return errPkg.Wrap(err, "decoding to address")
	}
	from, err := address.NewFromBytes(w.From)
	if err != nil {
		return errPkg.Wrap(err, "decoding from address")
	}
	*msg = Message{
		Version:    w.Version,
		To:         to,
		From:       from,
		Nonce:      w.Nonce,
		Value:      big.Zero(),
		GasLimit:   w.GasLimit,
		GasFeeCap:  big.Zero(),
		GasPremium: big.Zero(),
		Method:     abi.MethodNum(w.Method),
		Params:     w.Params,
	}
	if msg.Value, err = big.FromBytes(w.Value); err != nil {
		return errPkg.Wrap(err, "decoding value")
	}
	if msg.GasFeeCap, err = big.FromBytes(w.GasFeeCap); err != nil {
		return errPkg.Wrap(err, "decoding gas fee cap")
	}
	if msg.GasPremium, err = big.FromBytes(w.GasPremium); err != nil {
		return errPkg.Wrap(err, "decoding gas premium")
	}
	return nil
}

// Cid returns the canonical CID for the message.
func (msg *Message) Cid() (cid.Cid, error) {
	data, err := msg.MarshalCBOR()
	if err != nil {
		return cid.Undef, errPkg.Wrap(err, "failed to marshal to cbor")
	}
	return constants.DefaultCidBuilder.Sum(data)
}

func (msg *Message) String() string {
	errStr := "(error encoding Message)"
	c, err := msg.Cid()
	if err != nil {
		return errStr
	}
	js, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return errStr
	}
	return fmt.Sprintf("Message cid=[%v]: %s", c, string(js))
}

func tokenOrZero(v abi.TokenAmount) abi.TokenAmount {
	if v.Nil() {
		return big.Zero()
	}
	return v
}

func tokenBytes(v abi.TokenAmount) ([]byte, error) {
	amt := tokenOrZero(v)
	return amt.Bytes()
}
