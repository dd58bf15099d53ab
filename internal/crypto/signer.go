package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Request authentication headers.
const (
	HeaderAddress   = "X-Peerstake-Address"
	HeaderTimestamp = "X-Peerstake-Timestamp"
	HeaderSignature = "X-Peerstake-Signature"
)

// ErrBadSignature is returned when a signature is malformed or was not
// produced by the claimed address.
var ErrBadSignature = errors.New("crypto: bad signature")

// Signer signs API requests with a secp256k1 key. The caller's identity is
// the Ethereum address of the key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key (0x optional).
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignRequest returns the hex signature over RequestDigest.
func (s *Signer) SignRequest(method, path string, timestamp int64, body []byte) (string, error) {
	sig, err := ethcrypto.Sign(RequestDigest(method, path, timestamp, body), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; wallets produce {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// SignHTTP sets the three authentication headers on req. body must be the
// exact bytes sent as the request body.
func (s *Signer) SignHTTP(req *http.Request, body []byte, now time.Time) error {
	ts := now.Unix()
	sig, err := s.SignRequest(req.Method, req.URL.Path, ts, body)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.address.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// RequestDigest is the EIP-191 personal-message hash of
//
//	keccak256(method "\n" path "\n" timestamp "\n" keccak256(body))
//
// so a browser wallet's personal_sign over the same 32 bytes verifies too.
func RequestDigest(method, path string, timestamp int64, body []byte) []byte {
	msg := ethcrypto.Keccak256(
		[]byte(strings.ToUpper(method)), []byte("\n"),
		[]byte(path), []byte("\n"),
		[]byte(strconv.FormatInt(timestamp, 10)), []byte("\n"),
		ethcrypto.Keccak256(body),
	)
	return accounts.TextHash(msg)
}

// RecoverRequest returns the address that produced sigHex over the request.
func RecoverRequest(method, path string, timestamp int64, body []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(RequestDigest(method, path, timestamp, body), sig)
	if err != nil {
		return common.Address{}, ErrBadSignature
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyRequest checks that sigHex was produced by claimed.
func VerifyRequest(claimed common.Address, method, path string, timestamp int64, body []byte, sigHex string) error {
	got, err := RecoverRequest(method, path, timestamp, body, sigHex)
	if err != nil {
		return err
	}
	if got != claimed {
		return ErrBadSignature
	}
	return nil
}

// GenerateKey creates a fresh secp256k1 private key and returns it as hex
// without the 0x prefix.
func GenerateKey() (string, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("crypto/signer: generate key: %w", err)
	}
	return hex.EncodeToString(ethcrypto.FromECDSA(pk)), nil
}
