package crypto

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
)

// PrivateKeyBytes is the length of a secp256k1 secret key.
const PrivateKeyBytes = 32

// NewSecpKeyFromSeed generates a new key from the given reader.
func NewSecpKeyFromSeed(seed io.Reader) (KeyInfo, error) {
	k := make([]byte, PrivateKeyBytes)
	if _, err := io.ReadFull(seed, k); err != nil {
		return KeyInfo{}, errors.Wrap(err, "reading seed")
	}
	priv, _ := btcec.PrivKeyFromBytes(k)
	if priv.Key.IsZero() {
		return KeyInfo{}, errors.New("seed produced an invalid secp256k1 key")
	}
	ki := &KeyInfo{
		SigType: SigTypeSecp256k1,
	}
	ki.SetPrivateKey(priv.Serialize())
	copy(k, make([]byte, len(k))) //wipe with zero bytes
	return *ki, nil
}

// ToPublic returns the uncompressed public key of a secp256k1 secret key.
func ToPublic(privateKey []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeyBytes {
		return nil, errors.Errorf("invalid private key length %d", len(privateKey))
	}
	_, pub := btcec.PrivKeyFromBytes(privateKey)
	return pub.SerializeUncompressed(), nil
}
