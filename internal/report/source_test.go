package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

// MockSource implements Source for testing
type MockSource struct {
	mock.Mock
}

func (m *MockSource) UnreconciledEntries(ctx context.Context, kind ledger.Kind, asOf time.Time) ([]ledger.Entry, error) {
	args := m.Called(ctx, kind, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Entry), args.Error(1)
}

func (m *MockSource) ListMatches(ctx context.Context, filters storage.MatchFilters) ([]*ledger.Match, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Match), args.Error(1)
}

func (m *MockSource) ListRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Run), args.Error(1)
}

func TestCollect_ReadsWholeLedger(t *testing.T) {
	src := new(MockSource)
	src.On("UnreconciledEntries", mock.Anything, ledger.Kind(""), time.Time{}).
		Return([]ledger.Entry{{ID: "BT-9"}}, nil)
	src.On("ListMatches", mock.Anything, storage.MatchFilters{Limit: maxMatches}).
		Return([]*ledger.Match{}, nil)
	src.On("ListRuns", mock.Anything, maxRuns).
		Return([]storage.Run{{ID: 7}}, nil)

	data, err := Collect(context.Background(), src, day(1))
	require.NoError(t, err)

	assert.Equal(t, "BT-9", data.Unreconciled[0].ID)
	assert.Equal(t, int64(7), data.Runs[0].ID)
	src.AssertExpectations(t)
}

func TestCollect_StopsOnFirstError(t *testing.T) {
	src := new(MockSource)
	src.On("UnreconciledEntries", mock.Anything, mock.Anything, mock.Anything).Return([]ledger.Entry{}, nil)
	src.On("ListMatches", mock.Anything, mock.Anything).Return(nil, errors.New("db closed"))

	_, err := Collect(context.Background(), src, day(1))

	assert.ErrorContains(t, err, "failed to read matches")
	src.AssertNotCalled(t, "ListRuns", mock.Anything, mock.Anything)
}
