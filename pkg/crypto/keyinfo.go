package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/filecoin-project/go-address"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

const stSecp256k1 = "secp256k1"

var log = logging.Logger("keyinfo")

// KeyInfo is a validator secret key held in a memguard enclave.
type KeyInfo struct {
	// Private key.
	PrivateKey *memguard.Enclave `json:"privateKey"`
	// Cryptographic system used to generate private key.
	SigType SigType `json:"type"`
}

type keyInfo struct {
	// Private key.
	PrivateKey []byte `json:"privateKey"`
	// Cryptographic system used to generate private key.
	SigType interface{} `json:"type"`
}

func (ki *KeyInfo) UnmarshalJSON(data []byte) error {
	k := keyInfo{}
	err := json.Unmarshal(data, &k)
	if err != nil {
		return err
	}

	switch st := k.SigType.(type) {
	case string:
		// compatible with lotus
		if st != stSecp256k1 {
			return fmt.Errorf("unsupported sig type value: %s", st)
		}
	case float64:
		if SigType(st) != SigTypeSecp256k1 {
			return fmt.Errorf("unsupported sig type value: %v", st)
		}
	default:
		return fmt.Errorf("unknown sig type: %T", k.SigType)
	}
	if len(k.PrivateKey) != PrivateKeyBytes {
		return fmt.Errorf("invalid private key length %d", len(k.PrivateKey))
	}
	ki.SigType = SigTypeSecp256k1
	ki.SetPrivateKey(k.PrivateKey)

	return nil
}

func (ki KeyInfo) MarshalJSON() ([]byte, error) {
	var err error
	var b []byte
	err = ki.UsePrivateKey(func(privateKey []byte) error {
		if ki.SigType != SigTypeSecp256k1 {
			return fmt.Errorf("unsupported keystore type %v", ki.SigType)
		}
		b, err = json.Marshal(keyInfo{PrivateKey: privateKey, SigType: stSecp256k1})
		return err
	})

	return b, err
}

// Key returns the private key of KeyInfo
// This method makes the key escape from memguard's protection, so use caution
func (ki *KeyInfo) Key() []byte {
	var pk []byte
	err := ki.UsePrivateKey(func(privateKey []byte) error {
		pk = make([]byte, len(privateKey))
		copy(pk, privateKey)
		return nil
	})
	if err != nil {
		log.Errorf("got private key failed %v", err)
		return []byte{}
	}
	return pk
}

// Equals returns true if the KeyInfo is equal to other.
func (ki *KeyInfo) Equals(other *KeyInfo) bool {
	if ki == nil && other == nil {
		return true
	}
	if ki == nil || other == nil {
		return false
	}
	if ki.SigType != other.SigType {
		return false
	}
	return bytes.Equal(ki.Key(), other.Key())
}

// Address returns the f1 address for this keyinfo
func (ki *KeyInfo) Address() (address.Address, error) {
	pubKey, err := ki.PublicKey()
	if err != nil {
		return address.Undef, err
	}
	return address.NewSecp256k1Address(pubKey)
}

// PublicKey returns the public key part as uncompressed bytes.
func (ki *KeyInfo) PublicKey() ([]byte, error) {
	var pubKey []byte
	err := ki.UsePrivateKey(func(privateKey []byte) error {
		var err error
		pubKey, err = ToPublic(privateKey)
		return err
	})

	return pubKey, err
}

func (ki *KeyInfo) UsePrivateKey(f func([]byte) error) error {
	if ki.PrivateKey == nil {
		return errors.New("key info has no private key")
	}
	buf, err := ki.PrivateKey.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()

	return f(buf.Bytes())
}

func (ki *KeyInfo) SetPrivateKey(privateKey []byte) {
	// will wipes privateKey with zeroes
	ki.PrivateKey = memguard.NewEnclave(privateKey)
}

// ReadKeyFile loads a JSON encoded KeyInfo, as written by WriteKeyFile.
func ReadKeyFile(path string) (*KeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading key file %s", path)
	}
	var ki KeyInfo
	if err := json.Unmarshal(data, &ki); err != nil {
		return nil, errors.Wrapf(err, "decoding key file %s", path)
	}
	return &ki, nil
}

// WriteKeyFile stores ki as JSON, readable only by the owner.
func WriteKeyFile(path string, ki *KeyInfo) error {
	data, err := json.Marshal(ki)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
