// Package chain implements the blockchain and fork engine (§4.7): block
// validation, a fork tree with cached lookups, longest-chain reorg,
// confirmation-depth labeling, and checksummed persistence with backups.
package chain

import (
	"time"

	"github.com/ezchain/validator-core/pkg/crypto"
)

// Block is one header in the chain (§3 Block): index, parent link, Merkle
// commitment over its selected submissions, a Bloom filter over their
// submitter addresses, and the miner's advisory self-signature. The
// canonical identifier is always the block hash, never the miner field.
type Block struct {
	Index           uint64
	PreHash         crypto.Digest
	MerkleRoot      crypto.Digest
	BloomFilter     *crypto.BloomFilter
	Miner           crypto.Address
	Nonce           uint64
	Timestamp       time.Time
	ProtocolVersion uint32
	Signature       []byte
	MinerPubKey     []byte
}

// headerDigest is the canonical encoding of every header field (§3: "Block
// hash = digest over all header fields").
func (b *Block) headerDigest() crypto.Digest {
	enc := crypto.NewEncoder()
	enc.WriteUint64(b.Index)
	enc.WriteDigest(b.PreHash)
	enc.WriteDigest(b.MerkleRoot)
	if b.BloomFilter != nil {
		enc.WriteBytes(b.BloomFilter.Bytes())
	} else {
		enc.WriteBytes(nil)
	}
	enc.WriteBytes(b.Miner[:])
	enc.WriteUint64(b.Nonce)
	enc.WriteUint64(uint64(b.Timestamp.UnixNano()))
	enc.WriteUint32(b.ProtocolVersion)
	return enc.Sum()
}

// Hash is the block's canonical identifier.
func (b *Block) Hash() crypto.Digest {
	return b.headerDigest()
}

// Sign produces the miner's advisory self-signature over the header digest.
// The system treats this as advisory only — the canonical identifier
// remains the block hash, not the miner field (§4.7 Validation).
func (b *Block) Sign(priv *crypto.PrivateKey, pub *crypto.PublicKey) error {
	sig, err := priv.Sign(b.headerDigest())
	if err != nil {
		return err
	}
	b.Signature = sig
	b.MinerPubKey = pub.Bytes()
	return nil
}

// VerifySignature checks the self-signature against the embedded miner
// pubkey, if one is present. A block without a signature is not rejected
// here — §4.7 Validation treats the miner field as advisory, so the
// authoritative checks are the link and Merkle-well-formedness checks the
// Blockchain performs separately.
func (b *Block) VerifySignature() bool {
	if len(b.Signature) == 0 || len(b.MinerPubKey) == 0 {
		return true
	}
	pub, err := crypto.PublicKeyFromBytes(b.MinerPubKey)
	if err != nil {
		return false
	}
	return pub.Verify(b.headerDigest(), b.Signature)
}
