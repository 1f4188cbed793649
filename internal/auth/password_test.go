package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return hasher
}

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("correct")
	require.NoError(t, err)
	assert.NotContains(t, hash, "correct")
	assert.True(t, strings.HasPrefix(hash, "$2a$"))

	assert.NoError(t, hasher.Compare(hash, "correct"))
	assert.ErrorIs(t, hasher.Compare(hash, "wrong"), ErrPasswordMismatch)
	assert.ErrorIs(t, hasher.Compare(hash, ""), ErrPasswordMismatch)
	assert.ErrorIs(t, hasher.Compare("not-a-hash", "correct"), ErrPasswordMismatch)
}

func TestPasswordHasher_Salted(t *testing.T) {
	hasher := newTestHasher(t)

	first, err := hasher.Hash("same")
	require.NoError(t, err)
	second, err := hasher.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPasswordHasher_CompareDummyAlwaysFails(t *testing.T) {
	hasher := newTestHasher(t)

	for _, password := range []string{"", "correct", "anything at all"} {
		assert.ErrorIs(t, hasher.CompareDummy(password), ErrPasswordMismatch)
	}
}

func TestNewPasswordHasher_InvalidCostFallsBack(t *testing.T) {
	hasher, err := NewPasswordHasher(bcrypt.MaxCost + 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultPasswordCost, hasher.cost)
}
