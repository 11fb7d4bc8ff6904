package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestJWKSClientCachesAndThrottles(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{
			{
				"kty": "RSA",
				"kid": "k1",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(priv.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.E)).Bytes()),
			},
			{"kty": "RSA", "kid": "enc", "use": "enc", "n": "AQAB", "e": "AQAB"},
		}})
	}))
	defer srv.Close()

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewJWKSClient(srv.URL, time.Minute)
	c.now = func() time.Time { return now }

	pub, err := c.Get("k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pub.N.Cmp(priv.N) != 0 || pub.E != priv.E {
		t.Fatal("unexpected public key")
	}
	if _, err := c.Get("k1"); err != nil || hits.Load() != 1 {
		t.Fatalf("expected cached key, hits=%d err=%v", hits.Load(), err)
	}

	if _, err := c.Get("unknown"); !errors.Is(err, ErrKeyNotFound) || hits.Load() != 1 {
		t.Fatalf("a miss right after a fetch must not refetch, hits=%d err=%v", hits.Load(), err)
	}

	now = now.Add(31 * time.Second)
	if _, err := c.Get("enc"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("encryption keys should be skipped, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected a refresh on miss, hits=%d", hits.Load())
	}
	if _, err := c.Get("unknown"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("misses inside the refresh interval must not refetch, hits=%d", hits.Load())
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get("k1"); err != nil || hits.Load() != 3 {
		t.Fatalf("expected refetch after ttl, hits=%d err=%v", hits.Load(), err)
	}
}

func TestJWKSClientServesStaleKeyOnFailure(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(priv.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewJWKSClient(srv.URL, time.Minute)
	c.now = func() time.Time { return now }
	if _, err := c.Get("k1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	fail.Store(true)
	now = now.Add(5 * time.Minute)
	if _, err := c.Get("k1"); err != nil {
		t.Fatalf("stale key should keep serving, got %v", err)
	}
	if _, err := c.Get("k2"); err == nil {
		t.Fatal("expected an error for an unknown key while the endpoint is down")
	}
}
