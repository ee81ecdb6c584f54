package types

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/crypto"
)

// Signer signs data with the private key behind its address.
type Signer interface {
	Address() address.Address
	SignBytes(ctx context.Context, data []byte) (*crypto.Signature, error)
}
