package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON-RPC request/response types

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// JSONRPCCode exposes the numeric error code for retry classification.
func (e *RPCError) JSONRPCCode() int {
	return e.Code
}

// getSignaturesForAddress response
type SignatureInfo struct {
	Signature          string          `json:"signature"`
	Slot               int64           `json:"slot"`
	BlockTime          *int64          `json:"blockTime"`
	Err                json.RawMessage `json:"err"`
	Memo               *string         `json:"memo"`
	ConfirmationStatus *string         `json:"confirmationStatus"`
}

// Failed reports whether the transaction errored on chain.
func (s SignatureInfo) Failed() bool {
	return !isJSONNull(s.Err)
}

type GetSignaturesOpts struct {
	Limit  int
	Before string // signature to start searching backwards from
	Until  string // signature to search until (exclusive)
}

// getTransaction response (jsonParsed)
type TransactionResult struct {
	Slot        int64            `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Transaction TransactionData  `json:"transaction"`
	Meta        *TransactionMeta `json:"meta"`
}

type TransactionData struct {
	Message TransactionMessage `json:"message"`
}

type TransactionMessage struct {
	AccountKeys  []AccountKey  `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// AccountKey accepts both encodings of message.accountKeys: the raw "json"
// form is a bare base58 string, the "jsonParsed" form is an object with a
// pubkey field.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

func (k *AccountKey) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("unmarshal account key string: %w", err)
		}
		*k = AccountKey{Pubkey: s}
		return nil
	}

	type alias AccountKey
	var obj alias
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("unmarshal account key object: %w", err)
	}
	*k = AccountKey(obj)
	return nil
}

type Instruction struct {
	Program   string             `json:"program"`
	ProgramID string             `json:"programId"`
	Parsed    *ParsedInstruction `json:"parsed"`
}

type ParsedInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// TransferInfo is the parsed info payload of a system-program transfer.
type TransferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    uint64 `json:"lamports"`
}

type TransactionMeta struct {
	Err             json.RawMessage  `json:"err"`
	Fee             uint64           `json:"fee"`
	PreBalances     []int64          `json:"preBalances"`
	PostBalances    []int64          `json:"postBalances"`
	LoadedAddresses *LoadedAddresses `json:"loadedAddresses"`
	LogMessages     []string         `json:"logMessages"`
}

// Failed reports whether the transaction errored on chain.
func (m *TransactionMeta) Failed() bool {
	return !isJSONNull(m.Err)
}

// LoadedAddresses holds accounts resolved from address lookup tables for
// versioned transactions. They extend the balance arrays past the static
// message keys, writable first.
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
