package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, zap.NewNop(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("query failed: %w", driver.ErrBadConn)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, zap.NewNop(), func() error {
		calls++
		return &pgconn.PgError{Code: codeSerializationFailure}
	})

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("deal not found")
	calls := 0
	err := WithRetry(context.Background(), 5, zap.NewNop(), func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "deal_participants_pkey"}

	assert.True(t, IsUniqueViolation(unique, ""))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", unique), "deal_participants_pkey"))
	assert.False(t, IsUniqueViolation(unique, "users_email_key"))
	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: codeCheckViolation}))
	assert.True(t, IsTransient(&pgconn.PgError{Code: codeDeadlockDetected}))
	assert.False(t, IsTransient(unique))
	assert.False(t, IsTransient(nil))
}
