package types

import (
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-ipc/pkg/constants"
	tf "github.com/filecoin-project/venus-ipc/pkg/testhelpers/testflags"
)

func newTestMessage(t *testing.T) *Message {
	to, err := address.NewIDAddress(1000)
	require.NoError(t, err)
	from, err := address.NewSecp256k1Address([]byte("sender"))
	require.NoError(t, err)
	return &Message{
		To:         to,
		From:       from,
		Nonce:      3,
		Value:      big.NewInt(10),
		GasLimit:   1000,
		GasFeeCap:  big.NewInt(200),
		GasPremium: big.NewInt(20),
		Method:     2,
		Params:     []byte{0xde, 0xad},
	}
}

func TestMessageCid(t *testing.T) {
	tf.UnitTest(t)

	msg := newTestMessage(t)
	c1, err := msg.Cid()
	require.NoError(t, err)
	assert.Equal(t, uint64(cid.DagCBOR), c1.Prefix().Codec)

	raw, err := msg.MarshalCBOR()
	require.NoError(t, err)
	var decoded Message
	require.NoError(t, decoded.UnmarshalCBOR(raw))
	c2, err := decoded.Cid()
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.True(t, decoded.Value.Equals(big.NewInt(10)))

	msg.Nonce++
	c3, err := msg.Cid()
	require.NoError(t, err)
	assert.NotEqual(t, c1, c3)
}

func TestMessageNilTokens(t *testing.T) {
	tf.UnitTest(t)

	msg := newTestMessage(t)
	msg.Value = abi.TokenAmount{}
	msg.GasFeeCap = abi.TokenAmount{}

	_, err := msg.Cid()
	require.NoError(t, err)
	funds := msg.RequiredFunds()
	assert.True(t, funds.IsZero())
}

func TestRequiredFunds(t *testing.T) {
	tf.UnitTest(t)

	msg := newTestMessage(t)
	assert.True(t, msg.RequiredFunds().Equals(big.NewInt(200_000)))
}

func TestExecModeOf(t *testing.T) {
	tf.UnitTest(t)

	implicit := NewImplicitMessage(constants.CronActorAddr, constants.MethodCronEpochTick, nil, 12)
	assert.Equal(t, ExecImplicit, ExecModeOf(implicit))
	assert.Equal(t, uint64(12), implicit.Nonce)
	assert.Equal(t, int64(constants.ImplicitMessageGasLimit), implicit.GasLimit)
	funds := implicit.RequiredFunds()
	assert.True(t, funds.IsZero())

	assert.Equal(t, ExecExplicit, ExecModeOf(newTestMessage(t)))

	assert.Equal(t, "implicit", ExecImplicit.String())
	assert.Equal(t, "explicit", ExecExplicit.String())
	assert.Equal(t, "ExecMode(7)", ExecMode(7).String())
}
