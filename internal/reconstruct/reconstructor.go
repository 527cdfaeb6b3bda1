// Package reconstruct rebuilds a token's buy/sell history by pairing token
// transfer events with plausible companion native-currency transfers.
//
// The pairing is a known-imprecise heuristic: temporal and block proximity
// cannot prove that a native payment caused a token transfer, only that the
// two plausibly belong to the same action. The block and time windows are
// empirically chosen tunables, not protocol guarantees.
package reconstruct

import (
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/coinscan/internal/types"
)

// Reconstructor pairs token transfers with companion native transfers
type Reconstructor struct {
	blockOffset uint64        // Companion search reaches ±blockOffset blocks
	timeWindow  time.Duration // Companions outside this timestamp window are rejected
}

// NewReconstructor creates a reconstructor with the given matching windows.
// Zero values fall back to the defaults (3 blocks, 60 seconds).
func NewReconstructor(blockOffset uint64, timeWindow time.Duration) *Reconstructor {
	if blockOffset == 0 {
		blockOffset = 3
	}
	if timeWindow <= 0 {
		timeWindow = 60 * time.Second
	}
	return &Reconstructor{blockOffset: blockOffset, timeWindow: timeWindow}
}

// Reconstruct builds the ordered buy/sell/mint event list for one token.
// currentBalance is the wallet's present holding; when the token carries a
// positive balance but no transfer events were found (indexer gaps), a
// single synthetic mint covering the full balance is emitted as a
// last-resort reconstruction.
func (r *Reconstructor) Reconstruct(wallet, token string, transfers []types.TokenTransferEvent, transactions []types.Transaction, currentBalance *big.Int) []types.ReconstructedEvent {
	wallet = strings.ToLower(wallet)
	token = strings.ToLower(token)

	if len(transfers) == 0 {
		if currentBalance != nil && currentBalance.Sign() > 0 {
			return []types.ReconstructedEvent{{
				Token:        token,
				Kind:         types.EventMint,
				TokenAmount:  new(big.Int).Set(currentBalance),
				NativeAmount: new(big.Int),
			}}
		}
		return nil
	}

	byBlock := groupByBlock(transactions)

	// Stable ordering keeps nearest-match tie-breaking deterministic
	ordered := make([]types.TokenTransferEvent, len(transfers))
	copy(ordered, transfers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		return ordered[i].Hash < ordered[j].Hash
	})

	var events []types.ReconstructedEvent
	for _, transfer := range ordered {
		isIncoming := strings.EqualFold(transfer.To, wallet)
		isOutgoing := strings.EqualFold(transfer.From, wallet)
		if isIncoming == isOutgoing {
			continue // Self-transfers and unrelated records carry no PnL signal
		}

		kind := types.EventBuy
		if isOutgoing {
			kind = types.EventSell
		}

		companion := r.findCompanion(byBlock, wallet, transfer, kind)
		nativeAmount := new(big.Int)
		if companion != nil {
			nativeAmount = companion.ValueAmount()
		}

		events = append(events, types.ReconstructedEvent{
			Token:        token,
			Kind:         kind,
			TokenAmount:  transfer.ValueAmount(),
			NativeAmount: nativeAmount,
			Timestamp:    transfer.Timestamp,
			BlockNumber:  transfer.BlockNumber,
		})
	}

	return events
}

// findCompanion looks for the native-currency transfer paired with a token
// transfer: the wallet paying out for a buy, or receiving for a sell. The
// same block is searched first; neighbors within the block offset are
// considered only when the same block yields nothing, filtered by the
// timestamp window. The closest candidate by absolute time difference wins;
// ties prefer the same block over neighbors.
func (r *Reconstructor) findCompanion(byBlock map[uint64][]types.Transaction, wallet string, transfer types.TokenTransferEvent, kind types.EventKind) *types.Transaction {
	if best := pickBest(candidatesInBlock(byBlock[transfer.BlockNumber], wallet, transfer, kind), transfer.Timestamp); best != nil {
		return best
	}

	var nearby []scoredCandidate
	for offset := uint64(1); offset <= r.blockOffset; offset++ {
		for _, block := range []uint64{transfer.BlockNumber + offset, transfer.BlockNumber - offset} {
			if block > transfer.BlockNumber+r.blockOffset { // Underflow guard for low block numbers
				continue
			}
			for _, cand := range candidatesInBlock(byBlock[block], wallet, transfer, kind) {
				delta := absDelta(cand.tx.Timestamp, transfer.Timestamp)
				if time.Duration(delta)*time.Second > r.timeWindow {
					continue
				}
				cand.blockDistance = offset
				nearby = append(nearby, cand)
			}
		}
	}
	return pickBest(nearby, transfer.Timestamp)
}

type scoredCandidate struct {
	tx            types.Transaction
	blockDistance uint64
}

// candidatesInBlock filters a block's transactions to valid companions:
// the wallet on the paying side for buys or the receiving side for sells,
// positive value, and a different transaction hash than the transfer itself.
func candidatesInBlock(txs []types.Transaction, wallet string, transfer types.TokenTransferEvent, kind types.EventKind) []scoredCandidate {
	var out []scoredCandidate
	for _, tx := range txs {
		if strings.EqualFold(tx.Hash, transfer.Hash) {
			continue
		}
		if tx.ValueAmount().Sign() <= 0 {
			continue
		}
		switch kind {
		case types.EventBuy:
			if !strings.EqualFold(tx.From, wallet) {
				continue
			}
		case types.EventSell:
			if !strings.EqualFold(tx.To, wallet) {
				continue
			}
		}
		out = append(out, scoredCandidate{tx: tx})
	}
	return out
}

// pickBest orders candidates by |Δt|, then by block distance (same block
// beats neighbors), then by hash for determinism, and returns the winner.
func pickBest(candidates []scoredCandidate, ts int64) *types.Transaction {
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di := absDelta(candidates[i].tx.Timestamp, ts)
		dj := absDelta(candidates[j].tx.Timestamp, ts)
		if di != dj {
			return di < dj
		}
		if candidates[i].blockDistance != candidates[j].blockDistance {
			return candidates[i].blockDistance < candidates[j].blockDistance
		}
		return candidates[i].tx.Hash < candidates[j].tx.Hash
	})
	winner := candidates[0].tx
	return &winner
}

// groupByBlock indexes transactions by block number, preserving input order
// within each block
func groupByBlock(transactions []types.Transaction) map[uint64][]types.Transaction {
	byBlock := make(map[uint64][]types.Transaction, len(transactions))
	for _, tx := range transactions {
		byBlock[tx.BlockNumber] = append(byBlock[tx.BlockNumber], tx)
	}
	return byBlock
}

func absDelta(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
