package types

import (
	"bytes"
	"encoding/hex"
	"sort"
	"strconv"
)

// Validator is a member of the subnet's power table, identified by its
// uncompressed secp256k1 public key.
type Validator struct {
	_ struct{} `cbor:",toarray"`

	PublicKey []byte
	Power     uint64
}

func (v Validator) String() string {
	return hex.EncodeToString(v.PublicKey) + ":" + strconv.FormatUint(v.Power, 10)
}

// PowerTable is the set of validators and their voting weight.
type PowerTable []Validator

// PowerOf returns the power of the validator with the given key, zero if
// the key is not in the table.
func (pt PowerTable) PowerOf(pubKey []byte) uint64 {
	for _, v := range pt {
		if bytes.Equal(v.PublicKey, pubKey) {
			return v.Power
		}
	}
	return 0
}

// PowerUpdates is the ordered list of validators whose power changed. A
// power of zero removes the validator from the active set.
type PowerUpdates []Validator

// DiffPowerTables returns the updates that turn prev into curr, sorted by
// public key so every node produces the same sequence.
func DiffPowerTables(prev, curr PowerTable) PowerUpdates {
	prevPower := make(map[string]uint64, len(prev))
	for _, v := range prev {
		prevPower[string(v.PublicKey)] = v.Power
	}

	updates := PowerUpdates{}
	seen := make(map[string]struct{}, len(curr))
	for _, v := range curr {
		k := string(v.PublicKey)
		seen[k] = struct{}{}
		p, ok := prevPower[k]
		if !ok && v.Power == 0 {
			continue
		}
		if !ok || p != v.Power {
			updates = append(updates, Validator{PublicKey: v.PublicKey, Power: v.Power})
		}
	}
	for _, v := range prev {
		if _, ok := seen[string(v.PublicKey)]; !ok && v.Power != 0 {
			updates = append(updates, Validator{PublicKey: v.PublicKey, Power: 0})
		}
	}

	sort.Slice(updates, func(i, j int) bool {
		return bytes.Compare(updates[i].PublicKey, updates[j].PublicKey) < 0
	})
	return updates
}
