package security_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/security"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("very-secure-password", cfg)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := security.VerifyPassword("very-secure-password", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = security.VerifyPassword("bogus-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordBadHash(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=4194304,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8,t=1,p=1$$a2V5a2V5a2V5a2V5",
	} {
		_, err := security.VerifyPassword("irrelevant", encoded)
		assert.ErrorIs(t, err, security.ErrInvalidHash, encoded)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	strong := weak
	strong.ArgonTime = 3

	hash, err := security.HashPassword("very-secure-password", weak)
	require.NoError(t, err)
	assert.False(t, security.NeedsRehash(hash, weak))
	assert.True(t, security.NeedsRehash(hash, strong))
	assert.True(t, security.NeedsRehash("garbage", weak))
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, security.ValidatePassword("short"))
	assert.Error(t, security.ValidatePassword("          "))
	assert.Error(t, security.ValidatePassword(strings.Repeat("a", security.MaxPasswordLength+1)))
	assert.NoError(t, security.ValidatePassword("eightchr"))
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := security.GenerateNumericCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}

	_, err = security.GenerateNumericCode(0)
	assert.Error(t, err)
}

func TestCodeMatches(t *testing.T) {
	hash := security.HashCode("challenge-1", "123456")
	assert.True(t, security.CodeMatches("challenge-1", "123456", hash))
	assert.True(t, security.CodeMatches("challenge-1", " 123456 ", hash))
	assert.False(t, security.CodeMatches("challenge-1", "654321", hash))
	assert.False(t, security.CodeMatches("challenge-2", "123456", hash))
	assert.NotContains(t, hash, "123456")
}
