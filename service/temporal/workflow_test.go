package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"
)

func TestReconcilePoolsWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		mockActivity   func(*testsuite.MockCallWrapper)
		expectedError  bool
		validateResult func(*testing.T, *ReconcileResult)
	}{
		{
			name: "successful pass with actions",
			mockActivity: func(reconcileMock *testsuite.MockCallWrapper) {
				reconcileMock.Return(&ReconcileResult{
					PoolsChecked: 5,
					Actions:      2,
					Errors:       0,
				}, nil)
			},
			expectedError: false,
			validateResult: func(t *testing.T, result *ReconcileResult) {
				assert.Equal(t, 5, result.PoolsChecked)
				assert.Equal(t, 2, result.Actions)
				assert.Equal(t, 0, result.Errors)
			},
		},
		{
			name: "successful pass with no active pools",
			mockActivity: func(reconcileMock *testsuite.MockCallWrapper) {
				reconcileMock.Return(&ReconcileResult{}, nil)
			},
			expectedError: false,
			validateResult: func(t *testing.T, result *ReconcileResult) {
				assert.Equal(t, 0, result.PoolsChecked)
				assert.Equal(t, 0, result.Actions)
			},
		},
		{
			name: "pass with per-pool errors still succeeds",
			mockActivity: func(reconcileMock *testsuite.MockCallWrapper) {
				reconcileMock.Return(&ReconcileResult{
					PoolsChecked: 3,
					Actions:      1,
					Errors:       2,
				}, nil)
			},
			expectedError: false,
			validateResult: func(t *testing.T, result *ReconcileResult) {
				assert.Equal(t, 2, result.Errors)
			},
		},
		{
			name: "activity failure fails the workflow",
			mockActivity: func(reconcileMock *testsuite.MockCallWrapper) {
				reconcileMock.Return(nil, errors.New("database unavailable"))
			},
			expectedError: true,
			validateResult: func(t *testing.T, result *ReconcileResult) {
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			activities := &Activities{}
			env.RegisterActivity(activities.ReconcilePools)

			reconcileMock := env.OnActivity(activities.ReconcilePools, mock.Anything, mock.Anything)
			tt.mockActivity(reconcileMock)

			env.ExecuteWorkflow(ReconcilePoolsWorkflow, ReconcileInput{})

			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
			} else {
				assert.NoError(t, env.GetWorkflowError())
				var result ReconcileResult
				err := env.GetWorkflowResult(&result)
				assert.NoError(t, err)
				tt.validateResult(t, &result)
			}
		})
	}
}

func TestReconcilePoolsWorkflow_ActivityRetries(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.ReconcilePools)

	// Fail twice then succeed; the workflow retry policy allows 3 attempts.
	callCount := 0
	env.OnActivity(activities.ReconcilePools, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			callCount++
			if callCount < 3 {
				panic("transient rpc error") // Temporal retries on panics
			}
		}).
		Return(&ReconcileResult{PoolsChecked: 1}, nil)

	env.ExecuteWorkflow(ReconcilePoolsWorkflow, ReconcileInput{})

	assert.NoError(t, env.GetWorkflowError())
	var result ReconcileResult
	assert.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.PoolsChecked)
	assert.Equal(t, 3, callCount)
}
