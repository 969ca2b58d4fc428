package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := ParseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.APIAddr)
	assert.Equal(t, 8, cfg.NumShards)
	assert.Empty(t, cfg.Peers)
}

func TestParseFlagsPeerList(t *testing.T) {
	cfg, err := ParseFlags([]string{"--peers", "n2=host2:9090,n3=host3:9090"})
	require.NoError(t, err)
	require.Len(t, cfg.Peers, 2)
	assert.Equal(t, "n2", cfg.Peers[0].NodeID)
	assert.Equal(t, "host3:9090", cfg.Peers[1].Addr)
}

func TestParseFlagsRejectsMalformedPeer(t *testing.T) {
	_, err := ParseFlags([]string{"--peers", "not-a-valid-entry"})
	assert.Error(t, err)
}
