package crypto

import (
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Address is a 20-byte account identifier derived from a public key, the
// same width go-ethereum uses for its addresses.
type Address [20]byte

// String returns the lowercase hex encoding of the address.
func (a Address) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 40)
	for i, b := range a {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromBytes builds an Address from a 20-byte slice.
func AddressFromBytes(b []byte) (Address, bool) {
	var a Address
	if len(b) != 20 {
		return a, false
	}
	copy(a[:], b)
	return a, true
}

// PrivateKey is a secp256k1 signing key. It never leaves an Account except to
// be handed to Sign, which returns synchronously and never retains a copy.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// PublicKey is a secp256k1 verification key, safe to copy and distribute.
type PublicKey struct {
	key *ecdsa.PublicKey
}

// GenerateKeyPair creates a new random secp256k1 keypair.
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	priv := &PrivateKey{key: key}
	return priv, priv.PublicKey(), nil
}

// PrivateKeyFromBytes parses a 32-byte raw secp256k1 scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// Bytes serializes the private key's raw 32-byte scalar.
func (p *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(p.key)
}

// PublicKey derives the corresponding public key.
func (p *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: &p.key.PublicKey}
}

// Sign produces a 65-byte recoverable ECDSA signature (R || S || V) over a
// 32-byte digest. Signing is synchronous and never mutates external state.
func (p *PrivateKey) Sign(digest Digest) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest[:], p.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return sig, nil
}

// PublicKeyFromBytes parses an uncompressed SEC1 public key (0x04 prefix, 65
// bytes), the "standard structured form" spec.md §4.1 requires.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	key, err := ethcrypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// Bytes serializes the public key in uncompressed SEC1 form.
func (pk *PublicKey) Bytes() []byte {
	return ethcrypto.FromECDSAPub(pk.key)
}

// Address derives the account address bound to this public key: the low 20
// bytes of the system digest over the uncompressed public key encoding.
func (pk *PublicKey) Address() Address {
	h := Hash(pk.Bytes())
	addr, _ := AddressFromBytes(h[12:])
	return addr
}

// Verify checks a 65-byte recoverable signature against digest and this
// public key.
func (pk *PublicKey) Verify(digest Digest, sig []byte) bool {
	if len(sig) != 65 {
		return false
	}
	// VerifySignature takes the 64-byte (R||S) portion only.
	return ethcrypto.VerifySignature(pk.Bytes(), digest[:], sig[:64])
}

// RecoverPublicKey recovers the signer's public key from digest and a
// 65-byte recoverable signature, used when only a signature and address are
// available and the embedded pubkey must be cross-checked.
func RecoverPublicKey(digest Digest, sig []byte) (*PublicKey, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	key, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return nil, fmt.Errorf("recover public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}
