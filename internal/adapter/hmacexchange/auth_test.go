package hmacexchange

import (
	"encoding/base64"
	"testing"
)

func TestSignIsDeterministicForIdenticalInputs(t *testing.T) {
	t.Parallel()
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret-key-material"))

	a, err := sign(secret, "1700000000", "GET", "/v1/balance", "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, err := sign(secret, "1700000000", "GET", "/v1/balance", "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if a != b {
		t.Errorf("sign produced different output for identical input: %q vs %q", a, b)
	}
}

func TestSignChangesWithMethodPathOrBody(t *testing.T) {
	t.Parallel()
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret-key-material"))

	base, err := sign(secret, "1700000000", "GET", "/v1/balance", "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if alt, _ := sign(secret, "1700000000", "POST", "/v1/balance", ""); alt == base {
		t.Error("signature did not change with method")
	}
	if alt, _ := sign(secret, "1700000000", "GET", "/v1/orders", ""); alt == base {
		t.Error("signature did not change with path")
	}
	if alt, _ := sign(secret, "1700000000", "GET", "/v1/balance", `{"a":1}`); alt == base {
		t.Error("signature did not change with body")
	}
}

func TestSignAcceptsEveryBase64Variant(t *testing.T) {
	t.Parallel()
	raw := []byte("another-secret-value")
	variants := []string{
		base64.URLEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(raw),
		base64.StdEncoding.EncodeToString(raw),
		base64.RawStdEncoding.EncodeToString(raw),
	}
	var first string
	for i, secret := range variants {
		got, err := sign(secret, "1700000000", "GET", "/v1/balance", "")
		if err != nil {
			t.Fatalf("variant %d: sign: %v", i, err)
		}
		if i == 0 {
			first = got
			continue
		}
		if got != first {
			t.Errorf("variant %d produced %q, want %q (all decode to the same secret bytes)", i, got, first)
		}
	}
}

func TestSignRejectsUndecodableSecret(t *testing.T) {
	t.Parallel()
	if _, err := sign("not base64 at all!!", "1700000000", "GET", "/v1/balance", ""); err == nil {
		t.Error("expected an error for an undecodable secret")
	}
}

func TestHeadersCarriesKeyAndPassphrase(t *testing.T) {
	t.Parallel()
	creds := Credentials{
		APIKey:     "key-123",
		Secret:     base64.URLEncoding.EncodeToString([]byte("secret-bytes")),
		Passphrase: "pass-456",
	}
	h, err := headers(creds, "GET", "/v1/balance", "")
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if h["API-KEY"] != "key-123" {
		t.Errorf("API-KEY = %q, want key-123", h["API-KEY"])
	}
	if h["API-PASSPHRASE"] != "pass-456" {
		t.Errorf("API-PASSPHRASE = %q, want pass-456", h["API-PASSPHRASE"])
	}
	if h["API-SIGN"] == "" {
		t.Error("API-SIGN is empty")
	}
	if h["API-TIMESTAMP"] == "" {
		t.Error("API-TIMESTAMP is empty")
	}
}
