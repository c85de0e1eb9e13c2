package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "worker.2")
	t.Setenv("HOSTNAME", "pod-abc")
	assert.Equal(t, "worker.2", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("WORKER_ID", "")
	t.Setenv("HOSTNAME", "pod-abc")
	assert.Equal(t, "pod-abc", GetID())

	t.Setenv("HOSTNAME", "")
	assert.Equal(t, "local", GetID())
}
