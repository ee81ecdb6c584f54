package testhelpers

import (
	"context"
	"sync"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/crypto"
	"github.com/filecoin-project/venus-ipc/pkg/encoding"
	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/net"
	"github.com/filecoin-project/venus-ipc/pkg/types"
)

// FakeClient is a net.Client whose mempool applies checkpoint signatures
// straight to a FakeGateway.
type FakeClient struct {
	lk sync.Mutex

	gw       *FakeGateway
	syncing  bool
	nonces   map[address.Address]uint64
	failNext int
	sent     []*types.SignedMessage
}

var _ net.Client = (*FakeClient)(nil)

func NewFakeClient(gw *FakeGateway) *FakeClient {
	return &FakeClient{
		gw:     gw,
		nonces: make(map[address.Address]uint64),
	}
}

// SetSyncing sets what Syncing reports.
func (c *FakeClient) SetSyncing(syncing bool) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.syncing = syncing
}

// FailNext makes the next n broadcasts fail with a transport error.
func (c *FakeClient) FailNext(n int) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.failNext = n
}

// Sent returns the transactions accepted by the mempool.
func (c *FakeClient) Sent() []*types.SignedMessage {
	c.lk.Lock()
	defer c.lk.Unlock()
	return append([]*types.SignedMessage(nil), c.sent...)
}

func (c *FakeClient) Syncing(context.Context) (bool, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.syncing, nil
}

func (c *FakeClient) StateNonce(_ context.Context, addr address.Address) (uint64, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.nonces[addr], nil
}

func (c *FakeClient) BroadcastTx(_ context.Context, smsg *types.SignedMessage) (*net.TxResult, error) {
	c.lk.Lock()
	defer c.lk.Unlock()

	if c.failNext > 0 {
		c.failNext--
		return nil, xerrors.New("connection reset")
	}

	msgCid, err := smsg.Cid()
	if err != nil {
		return nil, err
	}
	res := &net.TxResult{Cid: msgCid}

	msg := &smsg.Message
	if msg.Method != gateway.Methods.AddCheckpointSignature {
		res.ExitCode = exitcode.SysErrInvalidMethod
		return res, nil
	}
	var params gateway.AddCheckpointSignatureParams
	if err := encoding.Decode(msg.Params, &params); err != nil {
		res.ExitCode = exitcode.ErrSerialization
		return res, nil
	}

	unsignedCid, err := msg.Cid()
	if err != nil {
		return nil, err
	}
	if err := crypto.Verify(unsignedCid.Bytes(), params.PublicKey, smsg.Signature); err != nil {
		res.ExitCode = exitcode.SysErrSenderInvalid
		res.Info = err.Error()
		return res, nil
	}
	if msg.Nonce != c.nonces[msg.From] {
		res.ExitCode = exitcode.SysErrSenderStateInvalid
		res.Info = "nonce mismatch"
		return res, nil
	}
	if err := c.gw.AddSignature(msg.From, &params); err != nil {
		res.ExitCode = exitcode.ErrIllegalArgument
		res.Info = err.Error()
		return res, nil
	}

	c.nonces[msg.From]++
	c.sent = append(c.sent, smsg)
	return res, nil
}
