// Package evmexchange wraps internal/adapter/hmacexchange and adds L1
// EIP-712 typed-data signing on top of it, for an exchange account that
// authenticates with an on-chain EOA key rather than a pre-issued API key
// triple (spec.md §4.C/§4.D leave "how an account proves who it is" to the
// adapter). Grounded on the L1 half of the teacher's
// internal/exchange/auth.go: signClobAuth/SignTypedData, carried over with
// the same domain/type/message shape and the same v-value bump to 27/28,
// since nothing about EIP-712 signing is specific to the teacher's own
// exchange — it's the ambient way this codebase signs typed data.
package evmexchange

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer holds the EOA key used for L1 authentication and produces the L1
// request headers for the one-time derive-api-key call.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewSigner parses a hex-encoded (optionally 0x-prefixed) private key.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(chainID),
	}, nil
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address {
	return s.address
}

// L1Headers produces the headers for the one-time derive-api-key call:
// an EIP-712 "ClobAuth"-style signature attesting to wallet ownership.
func (s *Signer) L1Headers(nonce int) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := s.signAuthMessage(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign auth message: %w", err)
	}
	return map[string]string{
		"L1-ADDRESS":   s.address.Hex(),
		"L1-SIGNATURE": sig,
		"L1-TIMESTAMP": timestamp,
		"L1-NONCE":     strconv.Itoa(nonce),
	}, nil
}

func (s *Signer) signAuthMessage(timestamp string, nonce int) (string, error) {
	sig, err := s.SignTypedData(
		&apitypes.TypedDataDomain{
			Name:    "ExchangeAuthDomain",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(s.chainID)),
		},
		apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Auth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		apitypes.TypedDataMessage{
			"address":   s.address.Hex(),
			"timestamp": timestamp,
			"nonce":     fmt.Sprintf("%d", nonce),
			"message":   "This message attests that I control the given wallet",
		},
		"Auth",
	)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignTypedData signs EIP-712 typed data and normalizes the recovery byte
// to 27/28, the way every wallet/RPC in the ecosystem expects it.
func (s *Signer) SignTypedData(domain *apitypes.TypedDataDomain, typesDef apitypes.Types, message apitypes.TypedDataMessage, primaryType string) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       typesDef,
		PrimaryType: primaryType,
		Domain:      *domain,
		Message:     message,
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
