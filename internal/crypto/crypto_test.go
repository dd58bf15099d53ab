package crypto

import (
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecover(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	body := []byte(`{"option":1}`)
	sig, err := s.SignRequest("POST", "/api/markets/1/bets", 1_700_000_000, body)
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	if err := VerifyRequest(s.Address(), "post", "/api/markets/1/bets", 1_700_000_000, body, sig); err != nil {
		t.Errorf("VerifyRequest: %v", err)
	}

	tampered := []struct {
		name   string
		method string
		path   string
		ts     int64
		body   []byte
	}{
		{"path", "POST", "/api/markets/2/bets", 1_700_000_000, body},
		{"timestamp", "POST", "/api/markets/1/bets", 1_700_000_001, body},
		{"body", "POST", "/api/markets/1/bets", 1_700_000_000, []byte(`{"option":0}`)},
		{"method", "PUT", "/api/markets/1/bets", 1_700_000_000, body},
	}
	for _, tt := range tampered {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyRequest(s.Address(), tt.method, tt.path, tt.ts, tt.body, sig)
			if !errors.Is(err, ErrBadSignature) {
				t.Errorf("err = %v, want ErrBadSignature", err)
			}
		})
	}

	if _, err := RecoverRequest("GET", "/", 0, nil, "0x1234"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("short signature err = %v", err)
	}
}

func TestSignHTTP(t *testing.T) {
	s, _ := NewSigner(testKey)
	req := httptest.NewRequest("PUT", "/api/fee-schedule/admin", nil)
	now := time.Unix(1_700_000_123, 0)
	body := []byte(`{"admin":"0x01"}`)
	if err := s.SignHTTP(req, body, now); err != nil {
		t.Fatalf("SignHTTP: %v", err)
	}
	if req.Header.Get(HeaderAddress) != s.Address().Hex() || req.Header.Get(HeaderTimestamp) != "1700000123" {
		t.Errorf("headers = %v", req.Header)
	}
	ts, _ := strconv.ParseInt(req.Header.Get(HeaderTimestamp), 10, 64)
	addr := common.HexToAddress(req.Header.Get(HeaderAddress))
	if err := VerifyRequest(addr, req.Method, req.URL.Path, ts, body, req.Header.Get(HeaderSignature)); err != nil {
		t.Errorf("VerifyRequest: %v", err)
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := WriteKeyFile(path, testKey, "hunter2"); err != nil {
		t.Fatalf("WriteKeyFile: %v", err)
	}
	if err := WriteKeyFile(path, testKey, "hunter2"); err == nil {
		t.Error("WriteKeyFile overwrote an existing file")
	}

	s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("LoadSigner: %v", err)
	}
	want, _ := NewSigner(testKey)
	if s.Address() != want.Address() {
		t.Errorf("address = %s, want %s", s.Address().Hex(), want.Address().Hex())
	}

	if _, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"}); err == nil {
		t.Error("wrong password decrypted")
	}
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("empty config resolved a key")
	}
	raw, err := LoadKey(KeyConfig{RawPrivateKey: testKey, EncryptedKeyPath: "/nonexistent"})
	if err != nil || raw != testKey[2:] {
		t.Errorf("raw key = %q, %v", raw, err)
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	b, _ := GenerateKey()
	if len(a) != 64 || a == b {
		t.Fatalf("keys = %q, %q", a, b)
	}
	if _, err := NewSigner(a); err != nil {
		t.Errorf("NewSigner(generated): %v", err)
	}
}
