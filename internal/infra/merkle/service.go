package merkle

import "crossid/internal/domain"

// Service adapts the tree functions to the shape the usecases consume.
type Service struct{}

func (Service) BuildBatch(leafHashes [][]byte) (domain.MerkleBatch, error) {
	batch, err := BuildTree(leafHashes)
	if err != nil {
		return domain.MerkleBatch{}, err
	}
	return domain.MerkleBatch{Root: batch.Root, Proofs: batch.Proofs}, nil
}

func (Service) VerifyProof(leafHash []byte, path [][]byte, root []byte) (bool, error) {
	return VerifyProof(leafHash, path, root)
}
