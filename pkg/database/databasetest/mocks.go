// Package databasetest provides testify mocks for the transaction plumbing
// shared by the domain services.
package databasetest

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

// MockTx is a pgx.Tx whose Commit and Rollback are recorded. Any other method
// panics through the nil embedded interface; repositories are mocked, so the
// domain layer never calls them directly.
type MockTx struct {
	pgx.Tx
	mock.Mock
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// NewCommittingTx returns a MockTx expecting one Commit and the deferred Rollback.
func NewCommittingTx() *MockTx {
	tx := &MockTx{}
	tx.On("Commit", mock.Anything).Return(nil).Once()
	tx.On("Rollback", mock.Anything).Return(pgx.ErrTxClosed).Maybe()
	return tx
}

// NewRollbackTx returns a MockTx that only expects Rollback.
func NewRollbackTx() *MockTx {
	tx := &MockTx{}
	tx.On("Rollback", mock.Anything).Return(nil)
	return tx
}

// MockTransactionManager hands out a preconfigured transaction
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

// NewMockTransactionManager returns a manager whose BeginTx yields tx.
func NewMockTransactionManager(tx pgx.Tx) *MockTransactionManager {
	m := &MockTransactionManager{}
	m.On("BeginTx", mock.Anything).Return(tx, nil)
	return m
}
