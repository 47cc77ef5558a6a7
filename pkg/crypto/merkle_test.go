package crypto

import "testing"

func leaves(words ...string) []Digest {
	out := make([]Digest, len(words))
	for i, w := range words {
		out[i] = Hash([]byte(w))
	}
	return out
}

func TestBuildTree_RejectsEmptyLeaves(t *testing.T) {
	if _, err := BuildTree(nil); err != ErrEmptyTree {
		t.Fatalf("expected ErrEmptyTree, got %v", err)
	}
}

func TestBuildTree_SingleLeafRootEqualsLeaf(t *testing.T) {
	ls := leaves("only")
	tree, err := BuildTree(ls)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if tree.Root() != ls[0] {
		t.Fatal("expected a single-leaf tree's root to equal the leaf itself")
	}
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if len(proof.Path) != 0 {
		t.Fatalf("expected an empty proof path for a single-leaf tree, got %d steps", len(proof.Path))
	}
	if !VerifyProof(ls[0], proof, tree.Root()) {
		t.Fatal("expected the empty-path proof to verify")
	}
}

func TestBuildTree_EveryLeafProofVerifies(t *testing.T) {
	ls := leaves("a", "b", "c", "d", "e")
	tree, err := BuildTree(ls)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	for i, leaf := range ls {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatalf("Proof(%d): %v", i, err)
		}
		if !VerifyProof(leaf, proof, tree.Root()) {
			t.Fatalf("expected leaf %d's proof to verify against the root", i)
		}
	}
}

func TestBuildTree_OddLeafCountCarriesLonelyNodeUnduplicated(t *testing.T) {
	ls := leaves("a", "b", "c")
	tree, err := BuildTree(ls)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if !VerifyProof(ls[2], proof, tree.Root()) {
		t.Fatal("expected the lonely node's proof to still verify")
	}
}

func TestVerifyProof_RejectsWrongLeaf(t *testing.T) {
	ls := leaves("a", "b", "c", "d")
	tree, err := BuildTree(ls)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if VerifyProof(ls[1], proof, tree.Root()) {
		t.Fatal("expected a proof built for one leaf to fail verification against another")
	}
}

func TestTree_ProofRejectsOutOfRangeIndex(t *testing.T) {
	tree, err := BuildTree(leaves("a", "b"))
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if _, err := tree.Proof(2); err == nil {
		t.Fatal("expected an out-of-range index to error")
	}
	if _, err := tree.Proof(-1); err == nil {
		t.Fatal("expected a negative index to error")
	}
}

func TestTree_LeafCountAndLeaf(t *testing.T) {
	ls := leaves("a", "b", "c")
	tree, err := BuildTree(ls)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if tree.LeafCount() != 3 {
		t.Fatalf("expected 3 leaves, got %d", tree.LeafCount())
	}
	got, err := tree.Leaf(1)
	if err != nil {
		t.Fatalf("Leaf: %v", err)
	}
	if got != ls[1] {
		t.Fatal("expected Leaf(1) to return the second leaf")
	}
}
