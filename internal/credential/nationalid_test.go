package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNationalID(t *testing.T) {
	t.Run("valid male citizen born 1980", func(t *testing.T) {
		res := ValidateNationalID("8001015009087")
		require.True(t, res.Valid, res.Reason)
		assert.Equal(t, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), res.BirthDate)
		assert.Equal(t, "male", res.Sex)
		assert.Equal(t, "citizen", res.Citizenship)
	})

	t.Run("valid female citizen born 1992", func(t *testing.T) {
		res := ValidateNationalID("9202204720083")
		require.True(t, res.Valid, res.Reason)
		assert.Equal(t, time.Date(1992, 2, 20, 0, 0, 0, 0, time.UTC), res.BirthDate)
		assert.Equal(t, "female", res.Sex)
		assert.Equal(t, "citizen", res.Citizenship)
	})

	t.Run("years up to 30 map to the 2000s", func(t *testing.T) {
		res := ValidateNationalID("3001015009082")
		require.True(t, res.Valid, res.Reason)
		assert.Equal(t, 2030, res.BirthDate.Year())
	})

	t.Run("whitespace is trimmed", func(t *testing.T) {
		res := ValidateNationalID("  8001015009087  ")
		assert.True(t, res.Valid)
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		for _, input := range []string{"", "80010150090", "80010150090877"} {
			res := ValidateNationalID(input)
			assert.False(t, res.Valid, "input %q", input)
			assert.Contains(t, res.Reason, "13 digits")
		}
	})

	t.Run("non-digit characters rejected", func(t *testing.T) {
		res := ValidateNationalID("80010150090a7")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "only digits")
	})

	t.Run("checksum failure rejected", func(t *testing.T) {
		res := ValidateNationalID("8001015009080")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "checksum")
	})

	t.Run("impossible calendar date rejected", func(t *testing.T) {
		res := ValidateNationalID("9902305008086")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "birth date")
	})
}
