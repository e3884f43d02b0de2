package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestInsufficientErrorMatchesKind(t *testing.T) {
	stock := InsufficientStock("Hammer", decimal.RequireFromString("12"), decimal.RequireFromString("10"))
	wrapped := fmt.Errorf("process sale: %w", stock)

	require.ErrorIs(t, wrapped, ErrInsufficientStock)
	require.NotErrorIs(t, wrapped, ErrInsufficientFunds)
	require.EqualError(t, stock, "insufficient stock for Hammer: required 12, on hand 10")

	var insufficient *InsufficientError
	require.True(t, errors.As(wrapped, &insufficient))
	require.True(t, insufficient.Shortfall().Equal(decimal.NewFromInt(2)))

	funds := InsufficientFunds("Till A", decimal.RequireFromString("250"), decimal.RequireFromString("200.5"))
	require.ErrorIs(t, funds, ErrInsufficientFunds)
	require.EqualError(t, funds, "insufficient funds in Till A: required 250.00, balance 200.50")
}

func TestWrappedSentinels(t *testing.T) {
	err := NotFound("product", 42)
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualError(t, err, "product 42: not found")

	err = Invalid("quantity must be positive, got %s", "-1")
	require.ErrorIs(t, err, ErrValidation)
	require.EqualError(t, err, "validation failed: quantity must be positive, got -1")
}

func TestRounding(t *testing.T) {
	d := decimal.RequireFromString
	require.True(t, Money(d("10.005")).Equal(d("10.01")))
	require.True(t, Cost(d("5.57142857")).Equal(d("5.5714")))
	require.True(t, Qty(d("1.23456")).Equal(d("1.235")))
	require.True(t, Extend(d("3"), d("5.5714")).Equal(d("16.71")))
	require.True(t, Sum(d("1.10"), d("2.20"), d("-0.30")).Equal(d("3")))
	require.True(t, Sum().IsZero())
}

func TestIdempotencyKeyScopesByOperation(t *testing.T) {
	a := IdempotencyKey("transfer_cash", "k-1")
	require.Equal(t, a, IdempotencyKey("transfer_cash", "k-1"))
	require.NotEqual(t, a, IdempotencyKey("process_sale", "k-1"))
	require.NotEqual(t, a, IdempotencyKey("transfer_cash", "k-2"))
}

func TestLockKeys(t *testing.T) {
	require.Equal(t, "ledger:integrity:all:lock", IntegrityLockKey(0))
	require.Equal(t, "ledger:integrity:unit:3:lock", IntegrityLockKey(3))
	require.Equal(t, "ledger:reports:2026-10:warmup", ReportWarmupLockKey("2026-10"))
}

func TestContextValues(t *testing.T) {
	ctx := ContextWithActor(t.Context(), 7)
	ctx = ContextWithRequestID(ctx, "req-9")
	require.Equal(t, int64(7), ActorFromContext(ctx))
	require.Equal(t, "req-9", RequestIDFromContext(ctx))
	require.Zero(t, ActorFromContext(t.Context()))
}
