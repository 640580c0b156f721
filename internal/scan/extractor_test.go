package scan

import (
	"encoding/json"
	"testing"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/solana/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTx(keys []string, pre, post []int64) *rpc.TransactionResult {
	accountKeys := make([]rpc.AccountKey, len(keys))
	for i, k := range keys {
		accountKeys[i] = rpc.AccountKey{Pubkey: k}
	}
	return &rpc.TransactionResult{
		Transaction: rpc.TransactionData{
			Message: rpc.TransactionMessage{AccountKeys: accountKeys},
		},
		Meta: &rpc.TransactionMeta{
			PreBalances:  pre,
			PostBalances: post,
		},
	}
}

func TestCombinedAccountKeys(t *testing.T) {
	tx := makeTx([]string{"A", "B"}, nil, nil)
	tx.Meta.LoadedAddresses = &rpc.LoadedAddresses{
		Writable: []string{"W1", "W2"},
		Readonly: []string{"R1"},
	}

	assert.Equal(t, []string{"A", "B", "W1", "W2", "R1"}, CombinedAccountKeys(tx))
}

func TestCombinedAccountKeys_SkipsDuplicates(t *testing.T) {
	// Some providers merge loaded addresses into the parsed accountKeys
	// while still reporting them under loadedAddresses.
	tx := makeTx([]string{"A", "B", "W1"}, nil, nil)
	tx.Meta.LoadedAddresses = &rpc.LoadedAddresses{Writable: []string{"W1"}}

	assert.Equal(t, []string{"A", "B", "W1"}, CombinedAccountKeys(tx))
}

func TestBalanceDelta_Inbound(t *testing.T) {
	tx := makeTx([]string{"Sender", "Creator"}, []int64{10_000_000, 5_000_000}, []int64{8_995_000, 6_000_000})

	assert.Equal(t, int64(1_000_000), BalanceDelta(tx, "Creator"))
	assert.Equal(t, int64(-1_005_000), BalanceDelta(tx, "Sender"))
}

func TestBalanceDelta_LoadedAddressIndex(t *testing.T) {
	// Address resolved from a lookup table sits past the static keys in
	// the balance arrays.
	tx := makeTx([]string{"A", "B"}, []int64{100, 200, 300}, []int64{100, 200, 950})
	tx.Meta.LoadedAddresses = &rpc.LoadedAddresses{Writable: []string{"Creator"}}

	assert.Equal(t, int64(650), BalanceDelta(tx, "Creator"))
}

func TestBalanceDelta_ZeroCases(t *testing.T) {
	t.Run("nil transaction", func(t *testing.T) {
		assert.Equal(t, int64(0), BalanceDelta(nil, "Creator"))
	})

	t.Run("nil meta", func(t *testing.T) {
		tx := makeTx([]string{"Creator"}, []int64{1}, []int64{2})
		tx.Meta = nil
		assert.Equal(t, int64(0), BalanceDelta(tx, "Creator"))
	})

	t.Run("failed transaction", func(t *testing.T) {
		tx := makeTx([]string{"Creator"}, []int64{1_000}, []int64{2_000})
		tx.Meta.Err = json.RawMessage(`{"InstructionError": [0, "Custom"]}`)
		assert.Equal(t, int64(0), BalanceDelta(tx, "Creator"))
	})

	t.Run("address not present", func(t *testing.T) {
		tx := makeTx([]string{"A", "B"}, []int64{1, 2}, []int64{3, 4})
		assert.Equal(t, int64(0), BalanceDelta(tx, "Creator"))
	})

	t.Run("balance arrays too short", func(t *testing.T) {
		tx := makeTx([]string{"A", "Creator"}, []int64{1}, []int64{3})
		assert.Equal(t, int64(0), BalanceDelta(tx, "Creator"))
	})
}

func TestSelfTransferLamports(t *testing.T) {
	info, err := json.Marshal(rpc.TransferInfo{Source: "Creator", Destination: "Creator", Lamports: 500})
	require.NoError(t, err)
	inbound, err := json.Marshal(rpc.TransferInfo{Source: "Other", Destination: "Creator", Lamports: 900})
	require.NoError(t, err)

	tx := makeTx([]string{"Creator"}, nil, nil)
	tx.Transaction.Message.Instructions = []rpc.Instruction{
		{ProgramID: systemProgramID, Parsed: &rpc.ParsedInstruction{Type: "transfer", Info: info}},
		{ProgramID: systemProgramID, Parsed: &rpc.ParsedInstruction{Type: "transfer", Info: inbound}},
		{ProgramID: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", Parsed: &rpc.ParsedInstruction{Type: "transfer", Info: info}},
	}

	assert.Equal(t, int64(500), SelfTransferLamports(tx, "Creator"))
	assert.Equal(t, int64(0), SelfTransferLamports(tx, "Other"))
	assert.Equal(t, int64(0), SelfTransferLamports(nil, "Creator"))
}
