package hmacexchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Credentials is one exchange account's API key triple.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// headers builds the HMAC-signed request headers for an authenticated
// call, grounded on the teacher's exchange.Auth.L2Headers/buildHMAC: sign
// timestamp+method+path[+body] with the base64-decoded secret, base64-url
// encode the digest, and carry the key/passphrase alongside it.
func headers(creds Credentials, method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := sign(creds.Secret, timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return map[string]string{
		"API-KEY":    creds.APIKey,
		"API-SIGN":   sig,
		"API-TIMESTAMP": timestamp,
		"API-PASSPHRASE": creds.Passphrase,
	}, nil
}

// sign tries every base64 variant the teacher tries against the secret
// (exchanges disagree on which one they hand out), then HMAC-SHA256s the
// signing string and base64-url encodes the digest.
func sign(secret, timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path
	if body != "" {
		message += body
	}
	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
