// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"

	"github.com/google/uuid"
)

// pointNamespace scopes document point IDs so they never collide with other
// name-based UUIDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://ricesearch.dev/rice-eval/documents"))

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// TermIndex maps an analyzed term to a sparse vector dimension.
func TermIndex(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}

// PointID derives a deterministic UUID for a corpus document ID.
func PointID(documentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID)).String()
}
