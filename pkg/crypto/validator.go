package crypto

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/crypto"
)

// ValidatorContext is the key material of a node that signs checkpoints.
// It is immutable and safe to share between goroutines.
type ValidatorContext struct {
	key       *KeyInfo
	publicKey []byte
	address   address.Address
}

// NewValidatorContext derives the public key and address of ki.
func NewValidatorContext(ki *KeyInfo) (*ValidatorContext, error) {
	pub, err := ki.PublicKey()
	if err != nil {
		return nil, err
	}
	addr, err := address.NewSecp256k1Address(pub)
	if err != nil {
		return nil, err
	}
	return &ValidatorContext{key: ki, publicKey: pub, address: addr}, nil
}

// LoadValidatorContext reads the validator key from path.
func LoadValidatorContext(path string) (*ValidatorContext, error) {
	ki, err := ReadKeyFile(path)
	if err != nil {
		return nil, err
	}
	return NewValidatorContext(ki)
}

// PublicKey returns a copy of the uncompressed public key.
func (v *ValidatorContext) PublicKey() []byte {
	return append([]byte(nil), v.publicKey...)
}

// Address is the f1 address the validator sends transactions from.
func (v *ValidatorContext) Address() address.Address {
	return v.address
}

// SignBytes signs data with the validator key.
func (v *ValidatorContext) SignBytes(_ context.Context, data []byte) (*crypto.Signature, error) {
	var sig Signature
	err := v.key.UsePrivateKey(func(sk []byte) error {
		var err error
		sig, err = Sign(data, sk)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sig, nil
}
