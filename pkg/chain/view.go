package chain

import "github.com/ezchain/validator-core/pkg/crypto"

// MerkleRootAt returns the merkle root committed at main-chain height h.
func (bc *Blockchain) MerkleRootAt(h uint64) (crypto.Digest, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if h >= uint64(len(bc.mainByIndex)) {
		return crypto.Digest{}, false
	}
	return bc.mainByIndex[h].Block.MerkleRoot, true
}

// BloomFilterAt returns the Bloom filter committed at main-chain height h.
func (bc *Blockchain) BloomFilterAt(h uint64) (*crypto.BloomFilter, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if h >= uint64(len(bc.mainByIndex)) {
		return nil, false
	}
	return bc.mainByIndex[h].Block.BloomFilter, true
}

// CurrentHeight returns the main-chain tip height.
func (bc *Blockchain) CurrentHeight() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.tip == nil {
		return 0
	}
	return bc.tip.Height
}

// GenesisHeight is always 0: the fork tree's root is always index 0.
func (bc *Blockchain) GenesisHeight() uint64 {
	return 0
}
