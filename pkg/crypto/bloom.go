package crypto

import (
	"encoding/binary"

	_ "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc" // registers hash.MIMC_BN254
	gcHash "github.com/consensys/gnark-crypto/hash"
)

// bloomBits and bloomHashCount are sized so that a single block's included
// submitter set (capped at AssemblerSettings.MaxSubmissionsPerBlock, default
// 100) yields a false-positive rate at or below 1%, per spec.md §4.1.
const (
	bloomBits      = 2048
	bloomBytes     = bloomBits / 8
	bloomHashCount = 7
)

// BloomFilter is a fixed-size bit array with k independent hash functions
// derived from the system digest primitive, used to record the set of
// submitter addresses included in a block (§3 Block, §4.8 double-spend check).
type BloomFilter struct {
	bits [bloomBytes]byte
}

// NewBloomFilter returns an empty Bloom filter.
func NewBloomFilter() *BloomFilter {
	return &BloomFilter{}
}

// seeds derives bloomHashCount independent bit positions for data. Each
// position comes from a domain-separated MiMC hash (gnark-crypto's
// hash.MIMC_BN254) of (index || data), the same "derive many outputs from one
// primitive via domain separation" approach the ancestor used for BLS domain
// constants in pkg/crypto/bls.
func seeds(data []byte) [bloomHashCount]uint32 {
	var out [bloomHashCount]uint32
	for i := 0; i < bloomHashCount; i++ {
		h := gcHash.MIMC_BN254.New()
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		h.Write(idx[:])
		h.Write(data)
		sum := h.Sum(nil)
		// Fold the MiMC digest down to a bit position in [0, bloomBits).
		v := binary.BigEndian.Uint64(sum[len(sum)-8:])
		out[i] = uint32(v % uint64(bloomBits))
	}
	return out
}

// Add inserts data's membership into the filter.
func (bf *BloomFilter) Add(data []byte) {
	for _, pos := range seeds(data) {
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// ProbablyContains reports whether data may have been added. False means
// definitely absent; true means present or a false positive.
func (bf *BloomFilter) ProbablyContains(data []byte) bool {
	for _, pos := range seeds(data) {
		if bf.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Bytes returns the raw bit array, for inclusion in a block header.
func (bf *BloomFilter) Bytes() []byte {
	return bf.bits[:]
}

// BloomFilterFromBytes reconstructs a filter from a serialized bit array.
func BloomFilterFromBytes(b []byte) (*BloomFilter, bool) {
	if len(b) != bloomBytes {
		return nil, false
	}
	bf := &BloomFilter{}
	copy(bf.bits[:], b)
	return bf, true
}
