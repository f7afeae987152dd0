package stub

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	solanago "github.com/gagliardetto/solana-go"

	"solana-threshold-trader/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// closeAccountInstruction is the token program CloseAccount discriminator.
const closeAccountInstruction = 9

// Account is a token account held by the stub.
type Account struct {
	Address   string
	ProgramID string
	Mint      string
	Owner     string
	Amount    uint64
	Lamports  uint64
}

// Gateway implements solana.Gateway in memory for testing.
// Submitted CloseAccount instructions are applied to the stored accounts.
type Gateway struct {
	mu sync.Mutex

	Balances     map[string]uint64
	Accounts     map[string]*Account
	Statuses     map[string]*solana.SignatureStatus
	Transactions map[string]*solana.Transaction

	Blockhash   solana.Blockhash
	BlockHeight uint64
	Slot        int64

	// Sent records every raw transaction accepted by SendTransaction.
	Sent [][]byte

	// Errors injected per method name, returned instead of a result.
	Errors map[string]error

	// OnSend, when set, decides the outcome of a submission.
	OnSend func(tx *solanago.Transaction) (*solana.SignatureStatus, error)

	// Calls counts invocations per method name.
	Calls map[string]int
}

var _ solana.Gateway = (*Gateway)(nil)

// NewGateway creates a new stub gateway.
func NewGateway() *Gateway {
	return &Gateway{
		Balances:     make(map[string]uint64),
		Accounts:     make(map[string]*Account),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Transactions: make(map[string]*solana.Transaction),
		Errors:       make(map[string]error),
		Calls:        make(map[string]int),
		Blockhash: solana.Blockhash{
			Blockhash:            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			LastValidBlockHeight: 150,
		},
		BlockHeight: 100,
	}
}

// AddAccount stores a token account.
func (g *Gateway) AddAccount(a Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := a
	g.Accounts[a.Address] = &cp
}

// SetAmount updates a stored account balance.
func (g *Gateway) SetAmount(address string, amount uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if a, ok := g.Accounts[address]; ok {
		a.Amount = amount
	}
}

// CallCount returns how many times method was invoked.
func (g *Gateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Calls[method]
}

// SetError injects err for method; nil clears it.
func (g *Gateway) SetError(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Errors[method] = err
}

func (g *Gateway) enter(method string) error {
	g.Calls[method]++
	return g.Errors[method]
}

// GetBalance returns the stored lamport balance.
func (g *Gateway) GetBalance(_ context.Context, owner string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getBalance"); err != nil {
		return 0, err
	}
	return g.Balances[owner], nil
}

// GetTokenAccountsByOwner returns stored accounts matching owner, mint and program.
func (g *Gateway) GetTokenAccountsByOwner(_ context.Context, owner, mint, programID string) ([]solana.TokenAccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getTokenAccountsByOwner"); err != nil {
		return nil, err
	}

	var out []solana.TokenAccount
	for _, a := range g.Accounts {
		if a.Owner != owner || a.Mint != mint || a.ProgramID != programID {
			continue
		}
		out = append(out, solana.TokenAccount{
			Address:   a.Address,
			ProgramID: a.ProgramID,
			Lamports:  a.Lamports,
			Data: solana.TokenAccountData{
				Mint:   a.Mint,
				Owner:  a.Owner,
				Amount: a.Amount,
				State:  solana.TokenAccountInitialized,
			},
		})
	}
	return out, nil
}

// GetAccountInfo returns the stored account encoded in the token layout, or nil.
func (g *Gateway) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getAccountInfo"); err != nil {
		return nil, err
	}

	a, ok := g.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	raw, err := solana.EncodeTokenAccount(solana.TokenAccountData{
		Mint:   a.Mint,
		Owner:  a.Owner,
		Amount: a.Amount,
		State:  solana.TokenAccountInitialized,
	})
	if err != nil {
		return nil, err
	}
	return &solana.AccountInfo{
		Lamports: a.Lamports,
		Owner:    a.ProgramID,
		Data:     base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// GetLatestBlockhash returns the configured blockhash.
func (g *Gateway) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getLatestBlockhash"); err != nil {
		return nil, err
	}
	bh := g.Blockhash
	return &bh, nil
}

// GetBlockHeight returns the configured block height.
func (g *Gateway) GetBlockHeight(_ context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getBlockHeight"); err != nil {
		return 0, err
	}
	return g.BlockHeight, nil
}

// SendTransaction decodes the transaction, applies CloseAccount instructions
// and records a confirmed status unless OnSend decides otherwise.
func (g *Gateway) SendTransaction(_ context.Context, raw []byte) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("sendTransaction"); err != nil {
		return "", err
	}

	tx, err := solanago.TransactionFromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0] == (solanago.Signature{}) {
		return "", fmt.Errorf("transaction is not signed")
	}
	sig := tx.Signatures[0].String()

	status := &solana.SignatureStatus{Slot: g.Slot, ConfirmationStatus: solana.CommitmentConfirmed}
	if g.OnSend != nil {
		status, err = g.OnSend(tx)
		if err != nil {
			return "", err
		}
	} else {
		status.Err = g.applyCloses(tx)
	}

	g.Sent = append(g.Sent, raw)
	if status != nil {
		g.Statuses[sig] = status
	}
	return sig, nil
}

// applyCloses removes accounts targeted by CloseAccount instructions.
// Closing a non-empty account fails the whole transaction.
func (g *Gateway) applyCloses(tx *solanago.Transaction) interface{} {
	keys := tx.Message.AccountKeys
	var closing []string
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			continue
		}
		program := keys[inst.ProgramIDIndex].String()
		if program != solana.TokenProgramID && program != solana.Token2022ProgramID {
			continue
		}
		if len(inst.Data) == 0 || inst.Data[0] != closeAccountInstruction || len(inst.Accounts) == 0 {
			continue
		}
		address := keys[inst.Accounts[0]].String()
		a, ok := g.Accounts[address]
		if !ok || a.ProgramID != program {
			return map[string]interface{}{"InstructionError": []interface{}{0, "InvalidAccountData"}}
		}
		if a.Amount != 0 {
			return map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 11}}}
		}
		closing = append(closing, address)
	}
	for _, address := range closing {
		delete(g.Accounts, address)
	}
	return nil
}

// GetSignatureStatuses returns recorded statuses.
func (g *Gateway) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getSignatureStatuses"); err != nil {
		return nil, err
	}

	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := g.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// SetStatus records a status for a signature.
func (g *Gateway) SetStatus(signature string, status *solana.SignatureStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Statuses[signature] = status
}

// GetTransaction returns a stored transaction or ErrNotFound.
func (g *Gateway) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getTransaction"); err != nil {
		return nil, err
	}
	tx, ok := g.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSlot returns the configured slot.
func (g *Gateway) GetSlot(_ context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("getSlot"); err != nil {
		return 0, err
	}
	return g.Slot, nil
}
