package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, dev := range []bool{true, false} {
		logger, err := New(dev, "messaging-service")
		require.NoError(t, err)
		assert.Equal(t, dev, logger.Core().Enabled(-1))
	}
}
