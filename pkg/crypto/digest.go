// Package crypto implements the protocol's cryptographic primitives (§4.1):
// a canonical-encoding digest, secp256k1 keypairs built on go-ethereum's
// crypto package (the same primitive the ancestor anchor-validator used to
// sign Ethereum transactions), a Merkle tree with inclusion proofs, and a
// Bloom filter whose k hash seeds are derived from gnark-crypto's MiMC hash.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
)

// Digest is the fixed 256-bit content-addressable hash used everywhere in
// ezchain: block hashes, transaction digests, multi-transaction digests,
// submission hashes, and Merkle leaves/nodes all share this primitive.
type Digest [32]byte

// IsZero reports whether d is the all-zero digest (the empty-leaf root used
// by an empty block package, per spec.md's boundary cases).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range d {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// DigestFromBytes builds a Digest from a 32-byte slice.
func DigestFromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != 32 {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// Encoder builds the canonical, deterministic byte serialization that every
// digest in the system is computed over: lexicographic field order (the
// caller writes fields in the order the type declares them), length-prefixed
// byte strings, and big-endian integers.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty canonical encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// WriteBytes appends a length-prefixed byte string.
func (e *Encoder) WriteBytes(b []byte) *Encoder {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, b...)
	return e
}

// WriteString appends a length-prefixed string.
func (e *Encoder) WriteString(s string) *Encoder {
	return e.WriteBytes([]byte(s))
}

// WriteUint64 appends a big-endian uint64.
func (e *Encoder) WriteUint64(v uint64) *Encoder {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// WriteUint32 appends a big-endian uint32.
func (e *Encoder) WriteUint32(v uint32) *Encoder {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// WriteDigest appends a raw 32-byte digest (no length prefix needed, fixed width).
func (e *Encoder) WriteDigest(d Digest) *Encoder {
	e.buf = append(e.buf, d[:]...)
	return e
}

// Bytes returns the accumulated canonical encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Sum returns the digest of the accumulated canonical encoding.
func (e *Encoder) Sum() Digest {
	return Hash(e.buf)
}

// Hash computes the system-wide digest primitive over arbitrary bytes.
func Hash(b []byte) Digest {
	return sha256.Sum256(b)
}

// HashPair computes the Merkle internal-node digest H(left || right).
func HashPair(left, right Digest) Digest {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return Hash(buf[:])
}
