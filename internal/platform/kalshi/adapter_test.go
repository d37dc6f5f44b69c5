package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

func TestFetchOrderBookConvertsYesNoBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/markets/KXBTC-25/orderbook", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("depth"))
		assert.Empty(t, r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		_, _ = w.Write([]byte(`{"orderbook":{"yes":[[40,10],[42,5]],"no":[[55,7]]}}`))
	}))
	defer srv.Close()

	a := NewAdapterWithClient("kalshi", "KXBTC-25", 5, NewClient(srv.URL+"/trade-api/v2", ""))
	snap, err := a.FetchOrderBook(context.Background(), "BTC/USD")
	require.NoError(t, err)

	require.Len(t, snap.Bids, 2)
	assert.Equal(t, "0.42", snap.Bids[0].Price)
	assert.Equal(t, "5", snap.Bids[0].Volume)
	assert.Equal(t, "0.4", snap.Bids[1].Price)

	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "0.45", snap.Asks[0].Price)
	assert.Equal(t, "7", snap.Asks[0].Volume)
	assert.Equal(t, "no", snap.Asks[0].Extra["book"])
}

func TestFetchOrderBookObjectLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"orderbook":{"yes":[{"price":30,"quantity":2}],"no":null}}`))
	}))
	defer srv.Close()

	a := NewAdapterWithClient("kalshi", "T", 0, NewClient(srv.URL, ""))
	snap, err := a.FetchOrderBook(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, []domain.RawEntry{{Price: "0.3", Volume: "2", Extra: map[string]any{"book": "yes", "source_price_cents": int64(30)}}}, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestFetchOrderBookMapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"too_many","message":"slow down"}`))
	}))
	defer srv.Close()

	a := NewAdapterWithClient("kalshi", "T", 0, NewClient(srv.URL, ""))
	_, err := a.FetchOrderBook(context.Background(), "X")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrVenue))
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.Contains(t, err.Error(), "slow down")
}

func TestSignedRequestVerifies(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-id", r.Header.Get("KALSHI-ACCESS-KEY"))
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		require.NoError(t, err)
		msg := r.Header.Get("KALSHI-ACCESS-TIMESTAMP") + r.Method + r.URL.Path
		hash := sha256.Sum256([]byte(msg))
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig,
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))
		_, _ = w.Write([]byte(`{"orderbook":{"yes":[],"no":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/trade-api/v2", "key-id")
	require.NoError(t, c.SetRSAPrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})))
	_, err = c.GetOrderbook(context.Background(), "T", 3)
	require.NoError(t, err)
}

func TestSetRSAPrivateKeyRejectsGarbage(t *testing.T) {
	assert.Error(t, NewClient("", "").SetRSAPrivateKey([]byte("not pem")))
}
