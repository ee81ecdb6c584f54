package net_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/net"
	th "github.com/filecoin-project/venus-ipc/pkg/testhelpers"
	tf "github.com/filecoin-project/venus-ipc/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-ipc/pkg/types"
)

func TestDialArgs(t *testing.T) {
	tf.UnitTest(t)

	cases := []struct {
		addr string
		want string
	}{
		{"/ip4/127.0.0.1/tcp/1234", "ws://127.0.0.1:1234/rpc/v1"},
		{"/ip4/127.0.0.1/tcp/1234/http", "http://127.0.0.1:1234/rpc/v1"},
		{"/ip4/127.0.0.1/tcp/1234/wss", "wss://127.0.0.1:1234/rpc/v1"},
		{"/dns/node.example/tcp/443/https", "https://node.example:443/rpc/v1"},
		{"ws://127.0.0.1:1234", "ws://127.0.0.1:1234/rpc/v1"},
		{"http://127.0.0.1:1234/", "http://127.0.0.1:1234/rpc/v1"},
	}
	for _, c := range cases {
		got, err := net.NewAPIInfo(c.addr, "").DialArgs(net.APIVersion)
		require.NoError(t, err, c.addr)
		assert.Equal(t, c.want, got, c.addr)
	}
}

func TestAuthHeader(t *testing.T) {
	tf.UnitTest(t)

	assert.Nil(t, net.NewAPIInfo("ws://127.0.0.1:1234", "").AuthHeader())

	h := net.NewAPIInfo("ws://127.0.0.1:1234", "secret").AuthHeader()
	require.NotNil(t, h)
	assert.Equal(t, "Bearer secret", h.Get(net.AuthorizationHeader))
}

func TestClientRoundTrip(t *testing.T) {
	tf.IntegrationTest(t)
	ctx := context.Background()

	vals := th.RequireValidators(t, 1, 7)
	val := vals[0]
	gw := th.NewFakeGateway("/root/t01002", 10, th.PowerTableOf(1, vals...))
	st := th.NewFakeExecState(10, []byte{0x0A})
	gw.Install(st)

	// create the checkpoint the signature is for
	caller := gateway.NewCaller()
	require.NoError(t, caller.CreateBottomUpCheckpoint(ctx, st, &types.Checkpoint{
		SubnetID:    "/root/t01002",
		BlockHeight: 10,
		BlockHash:   []byte{0x0A},
	}, th.PowerTableOf(1, vals...)))

	fake := th.NewFakeClient(gw)
	fake.SetSyncing(true)

	srv := httptest.NewServer(th.NewClientServer(fake))
	defer srv.Close()
	// the server handles any path, the client appends /rpc/v1
	addr := "ws://" + strings.TrimPrefix(srv.URL, "http://")

	client, closer, err := net.NewClient(ctx, net.NewAPIInfo(addr, ""))
	require.NoError(t, err)
	defer closer()

	syncing, err := client.Syncing(ctx)
	require.NoError(t, err)
	assert.True(t, syncing)

	nonce, err := client.StateNonce(ctx, val.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	cp, ok := gw.Checkpoint(10)
	require.True(t, ok)
	digest, err := cp.Digest()
	require.NoError(t, err)
	sig, err := val.SignBytes(ctx, digest[:])
	require.NoError(t, err)

	msg, err := caller.AddCheckpointSignatureMessage(val.Address(), nonce, &gateway.AddCheckpointSignatureParams{
		Height:    10,
		PublicKey: val.PublicKey(),
		Signature: sig.Data,
	})
	require.NoError(t, err)
	msg.GasLimit = 1_000_000
	msg.GasFeeCap = big.NewInt(100)
	msg.GasPremium = big.NewInt(1)
	smsg, err := types.NewSignedMessage(ctx, *msg, val)
	require.NoError(t, err)

	res, err := client.BroadcastTx(ctx, smsg)
	require.NoError(t, err)
	assert.Equal(t, exitcode.Ok, res.ExitCode)
	expected, err := smsg.Cid()
	require.NoError(t, err)
	assert.Equal(t, expected, res.Cid)
	assert.Equal(t, [][]byte{val.PublicKey()}, gw.Signatories(10))

	// the same transaction again carries a stale nonce
	res, err = client.BroadcastTx(ctx, smsg)
	require.NoError(t, err)
	assert.Equal(t, exitcode.SysErrSenderStateInvalid, res.ExitCode)

	nonce, err = client.StateNonce(ctx, val.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}
