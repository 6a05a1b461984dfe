package batch

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
)

func strPtr(s string) *string           { return &s }
func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func validRequest() *domain.ExecutionRequest {
	return &domain.ExecutionRequest{
		ExecutionStatus: strPtr("NEW"),
		TradeType:       strPtr("BUY"),
		Destination:     strPtr("NYSE"),
		SecurityID:      strPtr("SEC123"),
		Quantity:        decPtr(decimal.NewFromInt(100)),
	}
}

func TestValidateRequestAcceptsValidPayload(t *testing.T) {
	assert.Nil(t, ValidateRequest(validRequest()))
}

func TestValidateRequestNilRequest(t *testing.T) {
	ve := ValidateRequest(nil)
	require.NotNil(t, ve)
	assert.Equal(t, apperrors.CodeNullRequest, ve.Code)
}

func TestValidateRequestMissingField(t *testing.T) {
	req := validRequest()
	req.ExecutionStatus = nil
	ve := ValidateRequest(req)
	require.NotNil(t, ve)
	assert.Equal(t, apperrors.CodeMissingRequiredField, ve.Code)
	assert.Equal(t, "executionStatus", ve.Field)
}

func TestValidateRequestInvalidEnum(t *testing.T) {
	req := validRequest()
	req.TradeType = strPtr("HOLD")
	ve := ValidateRequest(req)
	require.NotNil(t, ve)
	assert.Equal(t, apperrors.CodeInvalidEnumValue, ve.Code)
	assert.Equal(t, "tradeType", ve.Field)
}

func TestValidateRequestFieldTooLong(t *testing.T) {
	req := validRequest()
	req.Destination = strPtr("THIS-DESTINATION-NAME-IS-WAY-TOO-LONG-FOR-THE-COLUMN")
	ve := ValidateRequest(req)
	require.NotNil(t, ve)
	assert.Equal(t, apperrors.CodeFieldTooLong, ve.Code)
}

func TestValidateRequestNonPositiveQuantity(t *testing.T) {
	req := validRequest()
	req.Quantity = decPtr(decimal.Zero)
	ve := ValidateRequest(req)
	require.NotNil(t, ve)
	assert.Equal(t, apperrors.CodeInvalidValue, ve.Code)
	assert.Equal(t, "quantity", ve.Field)
}

func TestValidateRequestAcceptsFilledSynonym(t *testing.T) {
	req := validRequest()
	req.ExecutionStatus = strPtr("FILLED")
	assert.Nil(t, ValidateRequest(req))
}

func TestSplitBatchChunksContiguously(t *testing.T) {
	chunks := SplitBatch(10, 3)
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 9}, {9, 10}}, chunks)
}

func TestSplitBatchEmpty(t *testing.T) {
	assert.Nil(t, SplitBatch(0, 5))
}

func TestSplitBatchZeroSizeUsesWholeInput(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 7}}, SplitBatch(7, 0))
}
