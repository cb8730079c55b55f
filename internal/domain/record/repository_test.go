package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampLimit(0))
	assert.Equal(t, DefaultListLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxListLimit, ClampLimit(MaxListLimit+1))
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusProcessed.Terminal())
	assert.True(t, StatusFailed.Terminal())

	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("done").Valid())
}
