// Package qdrant wraps the Qdrant Go client with the collection, upsert and
// sparse query operations the sparse index backend needs.
package qdrant

// CollectionConfig defines a collection of named sparse vectors.
type CollectionConfig struct {
	// Name is the collection name (will be prefixed with "rice_").
	Name string

	// SparseVectors names one IDF-weighted sparse vector per scoring model.
	SparseVectors []string

	// OnDiskPayload stores payload on disk to save RAM.
	OnDiskPayload bool
}

// DefaultCollectionConfig returns defaults for an evaluation collection.
func DefaultCollectionConfig(name string, vectors []string) CollectionConfig {
	return CollectionConfig{
		Name:          name,
		SparseVectors: vectors,
		OnDiskPayload: false,
	}
}

// SparseVector is a list of (dimension, weight) pairs with unique,
// ascending dimensions.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Len returns the number of non-zero dimensions.
func (v SparseVector) Len() int {
	return len(v.Indices)
}

// Point represents a point to upsert into Qdrant.
type Point struct {
	// ID is the point UUID.
	ID string

	// DocumentID is the corpus identifier stored in the payload.
	DocumentID string

	// Vectors holds one sparse vector per named vector.
	Vectors map[string]SparseVector
}

// SearchRequest is a sparse nearest-neighbour query.
type SearchRequest struct {
	// Using names the sparse vector to query.
	Using string

	// Vector is the query vector.
	Vector SparseVector

	// Limit is the maximum number of results.
	Limit uint64
}

// SearchResult is one scored point.
type SearchResult struct {
	ID         string
	DocumentID string
	Score      float32
}

// CollectionInfo contains collection metadata.
type CollectionInfo struct {
	Name          string
	PointsCount   uint64
	Status        string
	SegmentsCount uint64
}

// Payload keys.
const (
	PayloadDocumentID = "doc_id"
)
