// Package blockevents is the block event source and block decoder
// (spec.md §6): a subscription producing (block_hash, sync_flag,
// ledger_ref) on every new block, plus the accessors the Manager uses to
// pull ephemeral-key lists out of a raw block. Grounded on the teacher's
// subscribeStream — a NATS JetStream durable consumer with manual ack —
// adapted from transaction batches to block-committed notifications.
package blockevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	"github.com/nats-io/nats.go"

	"poc-challenge-manager/logging"
	"poc-challenge-manager/pockeys"
)

// KeyEntry is one (challenger, onion-key-hash) pair found in a block's
// ephemeral-key list.
type KeyEntry struct {
	ChallengerAddr string
	OnionKeyHash   pockeys.Hash
}

// Block is the decoded view the Manager operates on (spec.md §6's "Block
// decoder": height(block), time(block), hash(block), poc_keys(block)).
type Block struct {
	Height    int64
	Timestamp time.Time
	Hash      []byte
	Sync      bool
	Keys      []KeyEntry
}

// wireBlock is the JSON envelope published on the NATS subject; the real
// node's codec is out of scope (spec.md §6), so this is the minimal
// shape this module needs off the wire.
type wireBlock struct {
	Height    int64             `json:"height"`
	Timestamp int64             `json:"timestamp_unix"`
	Hash      cmtbytes.HexBytes `json:"hash"`
	Sync      bool              `json:"sync"`
	Keys      []wireKey         `json:"poc_keys"`
}

type wireKey struct {
	ChallengerAddr string `json:"challenger_addr"`
	OnionKeyHash   []byte `json:"onion_key_hash"`
}

func decodeBlock(data []byte) (Block, error) {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return Block{}, fmt.Errorf("blockevents: decode block: %w", err)
	}
	keys := make([]KeyEntry, len(w.Keys))
	for i, k := range w.Keys {
		h, err := pockeys.HashFromBytes(k.OnionKeyHash)
		if err != nil {
			return Block{}, fmt.Errorf("blockevents: decode key %d: %w", i, err)
		}
		keys[i] = KeyEntry{ChallengerAddr: k.ChallengerAddr, OnionKeyHash: h}
	}
	return Block{
		Height:    w.Height,
		Timestamp: time.Unix(w.Timestamp, 0).UTC(),
		Hash:      []byte(w.Hash),
		Sync:      w.Sync,
		Keys:      keys,
	}, nil
}

// Handler is invoked once per decoded block; returning an error leaves
// the underlying NATS message unacked so it is redelivered.
type Handler func(ctx context.Context, b Block) error

// Source subscribes to the block-committed stream published by the
// node's event bus.
type Source struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	durable string
}

// Config names the NATS stream/subject/durable-consumer triple.
type Config struct {
	URL              string
	Subject          string
	DurableName      string
	BlockEventStream string
}

// NewSource connects to NATS and binds JetStream, mirroring the teacher's
// batch consumer setup.
func NewSource(cfg Config) (*Source, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("blockevents: connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("blockevents: jetstream: %w", err)
	}
	return &Source{nc: nc, js: js, subject: cfg.Subject, durable: cfg.DurableName}, nil
}

// Close tears down the NATS connection.
func (s *Source) Close() {
	s.nc.Close()
}

// Subscribe binds a durable pull consumer and dispatches each decoded
// block to handle, acking only after handle returns nil (grounded on
// cosmosclient/tx_manager/batch_consumer.go's subscribeStream: manual ack,
// durable consumer). A message whose handler fails is left unacked; no Nak
// is sent.
func (s *Source) Subscribe(ctx context.Context, handle Handler) error {
	sub, err := s.js.PullSubscribe(s.subject, s.durable)
	if err != nil {
		return fmt.Errorf("blockevents: pull subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			logging.Warn("block event fetch failed", logging.ModuleChain, "err", err)
			continue
		}

		for _, msg := range msgs {
			block, err := decodeBlock(msg.Data)
			if err != nil {
				logging.Error("failed to decode block event", logging.ModuleChain, "err", err)
				_ = msg.Term()
				continue
			}
			if err := handle(ctx, block); err != nil {
				logging.Warn("block handler failed, leaving unacked", logging.ModuleChain,
					"height", block.Height, "err", err)
				continue
			}
			if err := msg.Ack(); err != nil {
				logging.Warn("failed to ack block event", logging.ModuleChain, "err", err)
			}
		}
	}
}
