package testhelpers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-ipc/pkg/crypto"
	"github.com/filecoin-project/venus-ipc/pkg/types"
)

// MustGenerateKeyInfo generates `n` distinct keyinfos using seed `seed`.
// The result is deterministic (for stable tests), don't use this for real keys!
func MustGenerateKeyInfo(n int, seed byte) []crypto.KeyInfo {
	token := bytes.Repeat([]byte{seed}, 512)
	var keyinfos []crypto.KeyInfo
	for i := 0; i < n; i++ {
		token[0] = byte(i + 1)
		ki, err := crypto.NewSecpKeyFromSeed(bytes.NewReader(token))
		if err != nil {
			panic(err)
		}
		keyinfos = append(keyinfos, ki)
	}
	return keyinfos
}

// RequireValidators returns n deterministic validator identities.
func RequireValidators(t *testing.T, n int, seed byte) []*crypto.ValidatorContext {
	kis := MustGenerateKeyInfo(n, seed)
	vals := make([]*crypto.ValidatorContext, 0, n)
	for i := range kis {
		vctx, err := crypto.NewValidatorContext(&kis[i])
		require.NoError(t, err)
		vals = append(vals, vctx)
	}
	return vals
}

// PowerTableOf gives every validator the same power.
func PowerTableOf(power uint64, vals ...*crypto.ValidatorContext) types.PowerTable {
	pt := make(types.PowerTable, 0, len(vals))
	for _, v := range vals {
		pt = append(pt, types.Validator{PublicKey: v.PublicKey(), Power: power})
	}
	return pt
}
