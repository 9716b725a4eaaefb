package finalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRequestValidate(t *testing.T) {
	assert.NoError(t, FinalizeRequest{ExecutionID: "exec-1", AppID: "app-1"}.Validate())

	err := FinalizeRequest{ExecutionID: "  "}.Validate()
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationFailed, ErrorCode(err))
	assert.Equal(t, "finalize::deployment", FinalizeRequest{}.Type())
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage(FinalizeRequest{ExecutionID: "e", AppID: "a"}))

	err := ValidateMessage(FinalizeRequest{})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeValidationFailed))

	var nilReq *FinalizeRequest
	err = ValidateMessage(nilReq)
	require.Error(t, err)
	assert.Equal(t, "INVALID_MESSAGE", ErrorCode(err))
}

func TestIsNilMessage(t *testing.T) {
	var nilReq *FinalizeRequest
	assert.True(t, IsNilMessage(nil))
	assert.True(t, IsNilMessage(nilReq))
	assert.False(t, IsNilMessage(FinalizeRequest{}))
	assert.False(t, IsNilMessage(&FinalizeRequest{}))
}
