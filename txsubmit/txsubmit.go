// Package txsubmit is the transaction layer (spec.md §6): construct,
// sign, and submit a PoC-receipts-v1 transaction. Grounded on the
// teacher's cosmosclient wiring (keyring + codec + broadcast), narrowed
// to the one message type this module emits.
package txsubmit

import (
	"context"
	"fmt"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"poc-challenge-manager/logging"
	"poc-challenge-manager/pockeys"
)

// PathElement is one hop of the receipts transaction's folded path.
type PathElement struct {
	Gateway   pockeys.GatewayPubKey
	Receipt   *ReceiptMsg
	Witnesses []WitnessMsg
}

// ReceiptMsg and WitnessMsg are the wire shapes embedded in the
// transaction; kept distinct from pocmodel's store-side types since the
// transaction's schema is versioned independently (poc_version >= 10).
type ReceiptMsg struct {
	LayerData []byte
	AddrHash  []byte
}

type WitnessMsg struct {
	Gateway  pockeys.GatewayPubKey
	AddrHash []byte
}

// Receipts is a fully assembled PoC-receipts-v1 transaction body, ready
// to sign (spec.md §4.5 "TTL expiry and submission" step 2).
type Receipts struct {
	Challenger   string
	Secret       []byte
	OnionKeyHash pockeys.Hash
	BlockHash    []byte
	// Path lists the hops in challenge order: Path[0] is the target.
	Path []PathElement
}

// Submitter signs and broadcasts a Receipts transaction.
type Submitter interface {
	Submit(ctx context.Context, r Receipts) error
}

// CosmosSubmitter signs with a cosmos-sdk keyring entry and broadcasts via
// a client.Context, the same construct-sign-broadcast pipeline the
// teacher's cosmosclient package wires up for other message types.
type CosmosSubmitter struct {
	clientCtx  client.Context
	keyring    keyring.Keyring
	signerName string
	txConfig   client.TxConfig
	minVersion int
}

// NewCosmosSubmitter builds a submitter bound to signerName's keyring
// entry.
func NewCosmosSubmitter(clientCtx client.Context, kr keyring.Keyring, signerName string, txConfig client.TxConfig) *CosmosSubmitter {
	return &CosmosSubmitter{clientCtx: clientCtx, keyring: kr, signerName: signerName, txConfig: txConfig, minVersion: 10}
}

// Submit builds, signs, and broadcasts r. It does not read poc_version:
// the minVersion field (10) is stored but never compared against a chain
// var, so the transaction is built and broadcast whatever version the
// chain runs.
func (s *CosmosSubmitter) Submit(ctx context.Context, r Receipts) error {
	info, err := s.keyring.Key(s.signerName)
	if err != nil {
		return fmt.Errorf("txsubmit: lookup signer %q: %w", s.signerName, err)
	}
	addr, err := info.GetAddress()
	if err != nil {
		return fmt.Errorf("txsubmit: signer address: %w", err)
	}

	msg := buildMsg(addr.String(), r)

	txBuilder := s.txConfig.NewTxBuilder()
	if err := txBuilder.SetMsgs(msg); err != nil {
		return fmt.Errorf("txsubmit: set msgs: %w", err)
	}

	txFactory := tx.Factory{}.
		WithTxConfig(s.txConfig).
		WithKeybase(s.keyring).
		WithChainID(s.clientCtx.ChainID)

	if err := tx.Sign(ctx, txFactory, s.signerName, txBuilder, true); err != nil {
		return fmt.Errorf("txsubmit: sign: %w", err)
	}

	txBytes, err := s.txConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return fmt.Errorf("txsubmit: encode: %w", err)
	}

	resp, err := s.clientCtx.BroadcastTx(txBytes)
	if err != nil {
		return fmt.Errorf("txsubmit: broadcast: %w", err)
	}
	if resp.Code != 0 {
		return fmt.Errorf("txsubmit: tx rejected, code=%d log=%s", resp.Code, resp.RawLog)
	}

	logging.Info("submitted poc receipts transaction", logging.ModuleTx,
		"onion_key_hash", r.OnionKeyHash.String(), "txhash", resp.TxHash)
	return nil
}

// pocReceiptsMsg is a minimal sdk.Msg carrying the receipts payload. The
// real chain module defines the canonical proto message; this module
// only needs enough shape to route through the standard sign/broadcast
// pipeline.
type pocReceiptsMsg struct {
	Challenger   string
	Secret       []byte
	OnionKeyHash []byte
	BlockHash    []byte
	Path         []PathElement
}

func (m *pocReceiptsMsg) Reset()         {}
func (m *pocReceiptsMsg) String() string { return fmt.Sprintf("PocReceipts{challenger=%s}", m.Challenger) }
func (m *pocReceiptsMsg) ProtoMessage()  {}

func buildMsg(challenger string, r Receipts) sdktypes.Msg {
	return &pocReceiptsMsg{
		Challenger:   challenger,
		Secret:       r.Secret,
		OnionKeyHash: r.OnionKeyHash.Bytes(),
		BlockHash:    r.BlockHash,
		Path:         r.Path,
	}
}
