package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChatTarget(t *testing.T) {
	got, err := ParseChatTarget(" -1001234567890 ")
	require.NoError(t, err)
	assert.Equal(t, ChatTarget{ChatID: -1001234567890}, got)
	assert.Equal(t, "-1001234567890", got.String())

	got, err = ParseChatTarget("@kedaikereta")
	require.NoError(t, err)
	assert.Equal(t, ChatTarget{Username: "@kedaikereta"}, got)
	assert.Equal(t, "@kedaikereta", got.String())

	for _, bad := range []string{"", "   ", "@", "@a b", "abc", "0"} {
		_, err := ParseChatTarget(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
