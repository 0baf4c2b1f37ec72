// Package wallet is the token-vault stub the game fronts with: connect a
// wallet, hold a simulated balance, deposit and withdraw. No chain access
// happens here; the match protocol only ever reads the wallet address to
// announce an identity in lobby presence.
package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotConnected is returned for vault operations without a wallet.
	ErrNotConnected = errors.New("wallet: not connected")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// vault balance.
	ErrInsufficientBalance = errors.New("wallet: insufficient vault balance")
)

// simulatedLatency stands in for wallet-adapter round trips.
const simulatedLatency = time.Second

// Vault is a session-scoped wallet connection and token balance.
type Vault struct {
	clock clockwork.Clock

	mu        sync.Mutex
	connected bool
	address   string
	balance   int64
}

// NewVault creates a disconnected vault.
func NewVault(clock clockwork.Clock) *Vault {
	return &Vault{clock: clock}
}

// Connect simulates connecting a wallet and records its address.
func (v *Vault) Connect(ctx context.Context, address string) error {
	if err := v.wait(ctx); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = true
	v.address = address
	log.Info().Str("address", address).Msg("wallet connected")
	return nil
}

// Disconnect drops the wallet. The balance survives for the session.
func (v *Vault) Disconnect() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = false
	v.address = ""
	log.Info().Msg("wallet disconnected")
}

// Address returns the connected wallet address, or "" when disconnected.
func (v *Vault) Address() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.address
}

// Balance returns the current vault balance.
func (v *Vault) Balance() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance
}

// Deposit adds tokens to the vault.
func (v *Vault) Deposit(ctx context.Context, amount int64) error {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return ErrNotConnected
	}
	v.mu.Unlock()

	if err := v.wait(ctx); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance += amount
	log.Info().Int64("amount", amount).Int64("balance", v.balance).Msg("vault deposit")
	return nil
}

// Withdraw removes tokens from the vault.
func (v *Vault) Withdraw(ctx context.Context, amount int64) error {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return ErrNotConnected
	}
	if amount > v.balance {
		v.mu.Unlock()
		return ErrInsufficientBalance
	}
	v.mu.Unlock()

	if err := v.wait(ctx); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if amount > v.balance {
		return ErrInsufficientBalance
	}
	v.balance -= amount
	log.Info().Int64("amount", amount).Int64("balance", v.balance).Msg("vault withdrawal")
	return nil
}

func (v *Vault) wait(ctx context.Context) error {
	select {
	case <-v.clock.After(simulatedLatency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
