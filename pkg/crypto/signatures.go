package crypto

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/minio/blake2b-simd"
	"github.com/pkg/errors"
)

type Signature = crypto.Signature
type SigType = crypto.SigType

const SigTypeSecp256k1 = crypto.SigTypeSecp256k1

// Sign signs the blake2b-256 hash of data with a secp256k1 secret key.
func Sign(data []byte, secretKey []byte) (Signature, error) {
	if len(secretKey) != PrivateKeyBytes {
		return Signature{}, errors.Errorf("invalid private key length %d", len(secretKey))
	}
	priv, _ := btcec.PrivKeyFromBytes(secretKey)
	hash := blake2b.Sum256(data)
	sig := ecdsa.Sign(priv, hash[:])
	return Signature{
		Type: SigTypeSecp256k1,
		Data: sig.Serialize(),
	}, nil
}

// Verify checks that sig is a signature of data by the owner of pubKey.
func Verify(data []byte, pubKey []byte, sig Signature) error {
	if sig.Type != SigTypeSecp256k1 {
		return errors.Errorf("incorrect signature type (%v), expected SECP256K1 signature", sig.Type)
	}
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return errors.Wrap(err, "parsing public key")
	}
	s, err := ecdsa.ParseDERSignature(sig.Data)
	if err != nil {
		return errors.Wrap(err, "parsing signature")
	}
	hash := blake2b.Sum256(data)
	if !s.Verify(hash[:], pub) {
		return errors.New("signature did not match")
	}
	return nil
}
