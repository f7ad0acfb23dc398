package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("path", "  ", Required).
		Field("original_name", strings.Repeat("é", 6), MaxLength(5)).
		Field("media_type", "image/png", Required, MaxLength(255))

	require.True(t, v.HasErrors())
	require.Len(t, v.Errors(), 2)
	assert.Equal(t, "path", v.Errors()[0].Field)
	assert.Equal(t, "original_name", v.Errors()[1].Field)

	err := ValidateAndReturnError(v)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, err.Error(), "must be at most 5 characters")
}

func TestValidatorRuneLength(t *testing.T) {
	v := NewValidator().Field("name", "ressonância", MaxLength(11))
	assert.False(t, v.HasErrors())
	assert.NoError(t, ValidateAndReturnError(v))
}
