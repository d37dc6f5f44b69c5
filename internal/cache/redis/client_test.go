package redis

import (
	"context"
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 8, TLSEnabled: true})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 8, opts.PoolSize)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)

	assert.Nil(t, options(ClientConfig{Addr: "cache:6379"}).TLSConfig)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	// nothing listens on port 1
	_, err := New(context.Background(), ClientConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
