package scratch

import "golang.org/x/crypto/sha3"

// blockChecksum hashes a persisted scratch block with SHAKE-256
// truncated to 16 bytes, the same construction the teacher's
// DECS/merkle.go uses for Merkle leaves — repurposed here for
// detecting a corrupted scratch block (spec §7 "checksum mismatch on
// a persisted scratch block") rather than for commitment proofs.
func blockChecksum(data []byte) [16]byte {
	var out [16]byte
	h := sha3.NewShake256()
	_, _ = h.Write(data)
	_, _ = h.Read(out[:])
	return out
}

// BlockChecksum exposes blockChecksum to sibling packages (emstream's
// run writer/reader) that need the identical block-corruption check
// over their own record layout.
func BlockChecksum(data []byte) [16]byte { return blockChecksum(data) }
