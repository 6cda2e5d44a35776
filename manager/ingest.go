package manager

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"

	"poc-challenge-manager/addrfilter"
	"poc-challenge-manager/logging"
	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocmodel"
	"poc-challenge-manager/txsubmit"
)

// ingestReceipt implements spec.md §4.5's receipt-ingestion state
// machine. All drops are logged at warn level and otherwise silent,
// since adversarial/irrelevant inputs must not disrupt the Manager
// (spec.md §7).
func (m *Manager) ingestReceipt(gateway pockeys.GatewayPubKey, onionKeyHash pockeys.Hash, layerData []byte, peerID, peerAddr string) {
	poc, err := m.store.Get(onionKeyHash)
	if err != nil {
		logging.Warn("receipt: no local poc", logging.ModulePoC, "onion_key_hash", onionKeyHash.String())
		return
	}

	idx := -1
	for i, c := range poc.Challengees {
		if string(c.Gateway) == string(gateway) {
			idx = i
			break
		}
	}
	if idx < 0 {
		logging.Warn("receipt: unknown gateway", logging.ModulePoC, "gateway", gateway.String())
		return
	}
	if string(poc.Challengees[idx].LayerData) != string(layerData) {
		logging.Warn("receipt: layer data mismatch", logging.ModulePoC, "gateway", gateway.String())
		return
	}

	key := gatewayKey(gateway)
	if _, already := poc.Receipts[key]; already {
		logging.Warn("receipt: already received", logging.ModulePoC, "gateway", gateway.String())
		return
	}

	result, h := m.filter.Check(peerAddr)
	isFirstHop := idx == 0
	switch result {
	case addrfilter.Seen:
		if isFirstHop {
			logging.Warn("receipt: first-hop replay, dropping entire challenge", logging.ModulePoC,
				"onion_key_hash", onionKeyHash.String())
			if err := m.store.Delete(onionKeyHash); err != nil {
				logging.Error("failed to delete challenge after first-hop replay", logging.ModuleStore, "err", err)
			}
			return
		}
		logging.Warn("receipt: address replay, dropping receipt", logging.ModulePoC, "gateway", gateway.String())
		return
	case addrfilter.NotSeen:
		poc.Receipts[key] = pocmodel.Receipt{PeerID: peerID, LayerData: layerData, HasAddrHash: true, AddrHash: h}
	default: // addrfilter.Unknown
		poc.Receipts[key] = pocmodel.Receipt{PeerID: peerID, LayerData: layerData}
	}

	if err := m.store.Put(poc); err != nil {
		logging.Error("failed to persist receipt", logging.ModuleStore, "err", err)
	}
}

// ingestWitness implements spec.md §4.5's witness-ingestion state
// machine.
func (m *Manager) ingestWitness(gateway pockeys.GatewayPubKey, onionKeyHash, packetHash pockeys.Hash, peerID, peerAddr string, perHopMaxWitnesses int) {
	poc, err := m.store.Get(onionKeyHash)
	if err != nil {
		logging.Warn("witness: no local poc", logging.ModulePoC, "onion_key_hash", onionKeyHash.String())
		return
	}

	found := false
	for _, ph := range poc.PacketHashes {
		if ph.PacketHash == packetHash {
			found = true
			if string(ph.Gateway) == string(gateway) {
				logging.Warn("witness: self-witness, dropping", logging.ModulePoC, "gateway", gateway.String())
				return
			}
			break
		}
	}
	if !found {
		logging.Warn("witness: unknown layer", logging.ModulePoC, "packet_hash", packetHash.String())
		return
	}

	key := packetHash.String()
	bucket := poc.Witnesses[key]
	if len(bucket) >= perHopMaxWitnesses {
		logging.Warn("witness: hop at capacity, dropping", logging.ModulePoC, "packet_hash", key)
		return
	}
	for _, w := range bucket {
		if string(w.Gateway) == string(gateway) {
			logging.Warn("witness: duplicate gateway, dropping", logging.ModulePoC, "gateway", gateway.String())
			return
		}
	}

	addrHash, _ := m.filter.HashOnly(peerAddr)
	poc.Witnesses[key] = append(bucket, pocmodel.Witness{
		PeerID:   peerID,
		Gateway:  gateway,
		PeerAddr: peerAddr,
		AddrHash: addrHash,
	})

	if err := m.store.Put(poc); err != nil {
		logging.Error("failed to persist witness", logging.ModuleStore, "err", err)
	}
}

func gatewayKey(gw pockeys.GatewayPubKey) string {
	return hex.EncodeToString(gw)
}

// expireAndSubmit scans the Store for TTL-expired challenges and submits
// their receipts transaction (spec.md §4.5 "TTL expiry and submission").
func (m *Manager) expireAndSubmit(currentHeight int64) {
	all, err := m.store.Iter()
	if err != nil {
		logging.Error("expiry scan: failed to iterate store", logging.ModuleStore, "err", err)
		return
	}

	for _, poc := range all {
		if currentHeight-poc.StartHeight <= PocTimeout {
			continue
		}
		if err := m.submitAndDelete(poc); err != nil {
			logging.Error("failed to submit receipts transaction, leaving challenge for retry", logging.ModuleTx,
				"onion_key_hash", poc.OnionKeyHash.String(), "err", err)
			continue
		}
	}
}

func (m *Manager) submitAndDelete(poc *pocmodel.LocalPoC) error {
	// traceID correlates this submission attempt's log lines; it has no
	// on-chain meaning and is never persisted.
	traceID := uuid.NewString()
	logging.Debug("submitting receipts transaction", logging.ModuleTx,
		"onion_key_hash", poc.OnionKeyHash.String(), "trace_id", traceID)

	path := make([]txsubmit.PathElement, len(poc.Challengees))
	for i, c := range poc.Challengees {
		elem := txsubmit.PathElement{Gateway: c.Gateway}

		if r, ok := poc.Receipts[gatewayKey(c.Gateway)]; ok {
			elem.Receipt = &txsubmit.ReceiptMsg{LayerData: r.LayerData, AddrHash: r.AddrHash}
		}

		if ph, ok := poc.PacketHashFor(c.Gateway); ok {
			for _, w := range poc.Witnesses[ph.String()] {
				if elem.Receipt != nil && string(w.AddrHash) == string(elem.Receipt.AddrHash) && len(w.AddrHash) > 0 {
					continue
				}
				if string(w.Gateway) == string(c.Gateway) {
					continue
				}
				elem.Witnesses = append(elem.Witnesses, txsubmit.WitnessMsg{Gateway: w.Gateway, AddrHash: w.AddrHash})
			}
		}

		path[i] = elem
	}

	challengerAddr := ""
	if len(poc.Challengees) > 0 {
		challengerAddr = m.selfAddr
	}

	receipts := txsubmit.Receipts{
		Challenger:   challengerAddr,
		Secret:       poc.SecretBytes,
		OnionKeyHash: poc.OnionKeyHash,
		BlockHash:    poc.BlockHash,
		Path:         path,
	}

	ctx := context.Background()
	if err := m.submit.Submit(ctx, receipts); err != nil {
		return err
	}

	return m.store.Delete(poc.OnionKeyHash)
}
