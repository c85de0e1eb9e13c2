package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	key, err := CleanKey("/proofs/course/abc.png")
	require.NoError(t, err)
	assert.Equal(t, "proofs/course/abc.png", key)

	for _, bad := range []string{"", "  ", "a/../b", "a//b", "./a"} {
		_, err := CleanKey(bad)
		assert.Error(t, err, bad)
	}
}
