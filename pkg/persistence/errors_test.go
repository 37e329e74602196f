package persistence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		isTenantNotFound bool
		isDuplicateSlug  bool
		isActiveExists   bool
	}{
		{
			name:             "ErrTenantNotFound detected by IsTenantNotFound",
			err:              ErrTenantNotFound,
			isTenantNotFound: true,
		},
		{
			name:            "ErrDuplicateSlug detected by IsDuplicateSlug",
			err:             ErrDuplicateSlug,
			isDuplicateSlug: true,
		},
		{
			name:           "ErrActiveWorkflowExists detected by IsActiveWorkflowExists",
			err:            ErrActiveWorkflowExists,
			isActiveExists: true,
		},
		{
			name: "generic error matches no helper",
			err:  assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isTenantNotFound, IsTenantNotFound(tt.err))
			assert.Equal(t, tt.isDuplicateSlug, IsDuplicateSlug(tt.err))
			assert.Equal(t, tt.isActiveExists, IsActiveWorkflowExists(tt.err))
		})
	}
}

func TestTenantError_WrapsSentinel(t *testing.T) {
	err := NewTenantError("Save", "tenant-1", ErrDuplicateSlug)

	assert.True(t, IsDuplicateSlug(err))
	assert.Contains(t, err.Error(), "tenant-1")
	assert.Contains(t, err.Error(), "Save")
}

func TestWorkflowError_WrapsThroughFmt(t *testing.T) {
	err := fmt.Errorf("materializing steps: %w", NewWorkflowError("Save", "wf-1", ErrActiveWorkflowExists))

	assert.True(t, IsActiveWorkflowExists(err))
}

func TestStepError(t *testing.T) {
	err := &StepError{Op: "Update", WorkflowID: "wf-1", StepID: "step-9", Err: ErrStepNotFound}

	assert.True(t, IsStepNotFound(err))
	assert.Contains(t, err.Error(), "step-9")
}
