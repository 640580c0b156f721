package scan

import (
	"encoding/json"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/solana/rpc"
)

const systemProgramID = "11111111111111111111111111111111"

// CombinedAccountKeys returns the transaction's accounts in balance-array
// order: static message keys first, then lookup-table writable addresses,
// then readonly. Nodes serving jsonParsed sometimes merge loaded addresses
// into accountKeys already, so duplicates are skipped.
func CombinedAccountKeys(tx *rpc.TransactionResult) []string {
	static := tx.Transaction.Message.AccountKeys

	keys := make([]string, 0, len(static))
	seen := make(map[string]struct{}, len(static))
	add := func(pubkey string) {
		if _, ok := seen[pubkey]; ok {
			return
		}
		seen[pubkey] = struct{}{}
		keys = append(keys, pubkey)
	}

	for _, k := range static {
		add(k.Pubkey)
	}
	if tx.Meta != nil && tx.Meta.LoadedAddresses != nil {
		for _, a := range tx.Meta.LoadedAddresses.Writable {
			add(a)
		}
		for _, a := range tx.Meta.LoadedAddresses.Readonly {
			add(a)
		}
	}
	return keys
}

// BalanceDelta returns the net lamport change for address in this
// transaction. It is zero when the transaction failed on chain, when the
// address does not appear in the account list, or when the balance arrays
// do not cover the address's index. Fees are borne by the fee payer, so an
// inbound transfer's delta is the received amount untouched.
func BalanceDelta(tx *rpc.TransactionResult, address string) int64 {
	if tx == nil || tx.Meta == nil {
		return 0
	}
	if tx.Meta.Failed() {
		return 0
	}

	idx := -1
	for i, key := range CombinedAccountKeys(tx) {
		if key == address {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return 0
	}

	return tx.Meta.PostBalances[idx] - tx.Meta.PreBalances[idx]
}

// SelfTransferLamports sums the parsed system-program transfers that move
// lamports from address back to itself. Only top-level jsonParsed
// instructions are visible; raw-encoded transactions report zero.
func SelfTransferLamports(tx *rpc.TransactionResult, address string) int64 {
	if tx == nil {
		return 0
	}

	var total int64
	for _, inst := range tx.Transaction.Message.Instructions {
		if inst.ProgramID != systemProgramID || inst.Parsed == nil {
			continue
		}
		if inst.Parsed.Type != "transfer" && inst.Parsed.Type != "transferWithSeed" {
			continue
		}
		var info rpc.TransferInfo
		if err := json.Unmarshal(inst.Parsed.Info, &info); err != nil {
			continue
		}
		if info.Source == address && info.Destination == address {
			total += int64(info.Lamports)
		}
	}
	return total
}
