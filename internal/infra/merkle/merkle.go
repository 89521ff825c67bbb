package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const HashSize = 32

var (
	ErrInvalidHashLen = errors.New("invalid hash length")
)

// Batch is a tree built over a set of leaf hashes: one root plus an inclusion
// proof per leaf, keyed by the hex encoding of the leaf hash.
type Batch struct {
	Root   []byte
	Proofs map[string][][]byte
}

// NodeHash combines two sibling hashes. The children are ordered by byte value
// before hashing, so the scheme never assumes hash(a,b) == hash(b,a) and the
// root is independent of sibling insertion order.
func NodeHash(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	hasher := sha256.New()
	hasher.Write([]byte{0x01})
	hasher.Write(a)
	hasher.Write(b)
	return hasher.Sum(nil)
}

// BuildTree hashes the leaves pairwise bottom-up. An odd node at any level is
// promoted unchanged to the next level. Zero leaves yield a nil root and empty
// proofs; one leaf yields root == leaf with an empty proof.
func BuildTree(leaves [][]byte) (*Batch, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	batch := &Batch{Proofs: make(map[string][][]byte, len(level))}
	if len(level) == 0 {
		return batch, nil
	}

	// position[i] tracks where leaf i currently sits in the working level.
	position := make([]int, len(level))
	paths := make([][][]byte, len(level))
	for i := range level {
		position[i] = i
	}

	for len(level) > 1 {
		for leaf, pos := range position {
			sibling := pos ^ 1
			if sibling < len(level) {
				paths[leaf] = append(paths[leaf], cloneHash(level[sibling]))
			}
			position[leaf] = pos / 2
		}
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, NodeHash(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}

	batch.Root = level[0]
	for i, leaf := range leaves {
		batch.Proofs[hex.EncodeToString(leaf)] = paths[i]
	}
	return batch, nil
}

// Root is a convenience wrapper when per-leaf proofs are not needed.
func Root(leaves [][]byte) ([]byte, error) {
	batch, err := BuildTree(leaves)
	if err != nil {
		return nil, err
	}
	return batch.Root, nil
}

// VerifyProof folds the proof over the leaf with the same pairwise rule used by
// BuildTree and compares the result against the expected root.
func VerifyProof(leafHash []byte, path [][]byte, expectedRoot []byte) (bool, error) {
	if err := validateHash(leafHash); err != nil {
		return false, err
	}
	if err := validateHash(expectedRoot); err != nil {
		return false, err
	}
	hash := cloneHash(leafHash)
	for _, sibling := range path {
		if err := validateHash(sibling); err != nil {
			return false, err
		}
		hash = NodeHash(hash, sibling)
	}
	return bytes.Equal(hash, expectedRoot), nil
}

func cloneAndValidateLeaves(leaves [][]byte) ([][]byte, error) {
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := validateHash(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func validateHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	if hash == nil {
		return nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}
