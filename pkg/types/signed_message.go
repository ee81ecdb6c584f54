package types

import (
	"context"

	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-ipc/pkg/constants"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
)

// SignedMessage contains a message and its signature
type SignedMessage struct {
	Message   Message          `json:"message"`
	Signature crypto.Signature `json:"signature"`
}

// NewSignedMessage signs the CID of msg with s. The signer must be the
// sender of the message.
func NewSignedMessage(ctx context.Context, msg Message, s Signer) (*SignedMessage, error) {
	if msg.From != s.Address() {
		return nil, errors.Errorf("signer %s is not the sender %s", s.Address(), msg.From)
	}

	msgCid, err := msg.Cid()
	if err != nil {
		return nil, err
	}

	sig, err := s.SignBytes(ctx, msgCid.Bytes())
	if err != nil {
		return nil, err
	}

	return &SignedMessage{
		Message:   msg,
		Signature: *sig,
	}, nil
}

type signedMessageWire struct {
	_ struct{} `cbor:",toarray"`

	Message   Message
	SigType   uint64
	Signature []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (smsg SignedMessage) MarshalCBOR() ([]byte, error) {
	return encoding.Encode(signedMessageWire{
		Message:   smsg.Message,
		SigType:   uint64(smsg.Signature.Type),
		Signature: smsg.Signature.Data,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (smsg *SignedMessage) UnmarshalCBOR(raw []byte) error {
	var w signedMessageWire
	if err := encoding.Decode(raw, &w); err != nil {
		return err
	}
	smsg.Message = w.Message
	smsg.Signature = crypto.Signature{Type: crypto.SigType(w.SigType), Data: w.Signature}
	return nil
}

// Cid returns the canonical CID for the SignedMessage.
func (smsg *SignedMessage) Cid() (cid.Cid, error) {
	data, err := smsg.MarshalCBOR()
	if err != nil {
		return cid.Undef, errors.Wrap(err, "failed to marshal to cbor")
	}
	return constants.DefaultCidBuilder.Sum(data)
}
