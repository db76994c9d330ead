package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateListTitle(t *testing.T) {
	assert.NoError(t, ValidateListTitle("Groceries"))
	assert.NoError(t, ValidateListTitle(strings.Repeat("ä", MaxListTitleLength)))

	err := ValidateListTitle("   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var fieldErr *Error
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "title", fieldErr.Field)
	assert.Equal(t, "required_field_missing", fieldErr.Code)

	err = ValidateListTitle(strings.Repeat("x", MaxListTitleLength+1))
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "max_length_exceeded", fieldErr.Code)
	assert.Equal(t, "title must be at most 60 characters", fieldErr.Message)
}

func TestValidateProductName(t *testing.T) {
	assert.NoError(t, ValidateProductName("Oat milk"))
	assert.Error(t, ValidateProductName("x"))
	assert.Error(t, ValidateProductName(""))
	assert.Error(t, ValidateProductName(strings.Repeat("y", MaxProductNameLength+1)))
}

func TestValidateQuantity(t *testing.T) {
	assert.NoError(t, ValidateQuantity(1))
	assert.NoError(t, ValidateQuantity(MaxQuantity))
	assert.Error(t, ValidateQuantity(0))
	assert.Error(t, ValidateQuantity(MaxQuantity+1))
}

func TestShareCode(t *testing.T) {
	assert.Equal(t, "AB12CD34", NormalizeShareCode(" ab12-cd34 "))
	assert.NoError(t, ValidateShareCode("ab12-cd34"))

	err := ValidateShareCode("AB12")
	var fieldErr *Error
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "invalid_share_code", fieldErr.Code)

	assert.Error(t, ValidateShareCode("AB12CD3!"))
	assert.Error(t, ValidateShareCode(""))
}

func TestFirst(t *testing.T) {
	a := errors.New("a")
	assert.NoError(t, First(nil, nil))
	assert.Equal(t, a, First(nil, a, errors.New("b")))
}
