package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// callPrefix is the personal-message prefix for signed API calls, in the
// spirit of EIP-191: it domain-separates call signatures from any other use
// of the same key.
const callPrefix = "\x19PredictionDAO Signed Call:\n"

// Signer produces recoverable secp256k1 signatures over API call digests.
// The server side recovers the caller address from the signature, so a
// request needs no session state beyond a fresh timestamp.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignCall signs an API call digest over method, path, body, and a Unix
// timestamp. The returned string is a hex-encoded 65-byte signature
// (r || s || v).
func (s *Signer) SignCall(method, path string, body []byte, unixTS int64) (string, error) {
	digest := CallDigest(method, path, body, unixTS)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// CallDigest computes the 32-byte digest the caller signs:
//
//	keccak256(prefix || timestamp || method || path || body)
func CallDigest(method, path string, body []byte, unixTS int64) []byte {
	return ethcrypto.Keccak256(
		[]byte(callPrefix),
		[]byte(strconv.FormatInt(unixTS, 10)),
		[]byte(method),
		[]byte(path),
		body,
	)
}

// RecoverCaller recovers the address that signed an API call. It returns an
// error when the signature is malformed or does not verify.
func RecoverCaller(method, path string, body []byte, unixTS int64, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: expected 65-byte signature, got %d", len(sig))
	}
	// Accept both v in {0,1} and the presentation form {27,28}.
	if sig[64] >= 27 {
		sig = append([]byte{}, sig...)
		sig[64] -= 27
	}

	digest := CallDigest(method, path, body, unixTS)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
