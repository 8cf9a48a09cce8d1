package temporal

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lotpool/lotpool/service/reconciler"
)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ReconcileOnce(ctx context.Context) (reconciler.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(reconciler.Result), args.Error(1)
}

func TestReconcilePoolsActivity(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rec := &MockReconciler{}
		rec.On("ReconcileOnce", mock.Anything).Return(reconciler.Result{
			PoolsChecked: 4,
			Actions:      1,
			Errors:       0,
		}, nil)

		activities := NewActivities(rec, nil, slog.Default())
		result, err := activities.ReconcilePools(context.Background(), ReconcileInput{})

		require.NoError(t, err)
		assert.Equal(t, 4, result.PoolsChecked)
		assert.Equal(t, 1, result.Actions)
		assert.Equal(t, 0, result.Errors)
		assert.False(t, result.RunTime.IsZero())
		rec.AssertExpectations(t)
	})

	t.Run("reconciler error propagates", func(t *testing.T) {
		rec := &MockReconciler{}
		rec.On("ReconcileOnce", mock.Anything).Return(reconciler.Result{}, errors.New("list pools: connection refused"))

		activities := NewActivities(rec, nil, slog.Default())
		result, err := activities.ReconcilePools(context.Background(), ReconcileInput{})

		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "connection refused")
		rec.AssertExpectations(t)
	})
}
