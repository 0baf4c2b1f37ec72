package wallet

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, v *Vault, clock *clockwork.FakeClock, address string) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- v.Connect(context.Background(), address) }()
	clock.BlockUntil(1)
	clock.Advance(simulatedLatency)
	require.NoError(t, <-done)
}

func TestConnectRecordsAddress(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := NewVault(clock)
	connect(t, v, clock, "0xabc")
	assert.Equal(t, "0xabc", v.Address())

	v.Disconnect()
	assert.Empty(t, v.Address())
}

func TestOperationsRequireConnection(t *testing.T) {
	v := NewVault(clockwork.NewFakeClock())
	require.ErrorIs(t, v.Deposit(context.Background(), 100), ErrNotConnected)
	require.ErrorIs(t, v.Withdraw(context.Background(), 100), ErrNotConnected)
}

func TestDepositAndWithdraw(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := NewVault(clock)
	connect(t, v, clock, "0xabc")

	done := make(chan error, 1)
	go func() { done <- v.Deposit(context.Background(), 250) }()
	clock.BlockUntil(1)
	clock.Advance(simulatedLatency)
	require.NoError(t, <-done)
	assert.Equal(t, int64(250), v.Balance())

	go func() { done <- v.Withdraw(context.Background(), 100) }()
	clock.BlockUntil(1)
	clock.Advance(simulatedLatency)
	require.NoError(t, <-done)
	assert.Equal(t, int64(150), v.Balance())
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := NewVault(clock)
	connect(t, v, clock, "0xabc")

	require.ErrorIs(t, v.Withdraw(context.Background(), 1), ErrInsufficientBalance)
	assert.Zero(t, v.Balance())
}

func TestBalanceSurvivesDisconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := NewVault(clock)
	connect(t, v, clock, "0xabc")

	done := make(chan error, 1)
	go func() { done <- v.Deposit(context.Background(), 42) }()
	clock.BlockUntil(1)
	clock.Advance(simulatedLatency)
	require.NoError(t, <-done)

	v.Disconnect()
	assert.Equal(t, int64(42), v.Balance())
	require.ErrorIs(t, v.Withdraw(context.Background(), 42), ErrNotConnected)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := NewVault(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Connect(ctx, "0xabc") }()
	clock.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, v.Address())
}
