// Package library defines the core data model for the media library
// pipeline.
//
// It contains:
//   - MediaItem metadata records and their processing state machine
//   - FaceCluster records grouping items by recognized person
//   - The analysis error taxonomy (transient, permanent, asset-unavailable)
//   - Text tokenization shared by the index and the query engine
//
// The package holds no state of its own; it is imported by every other
// pipeline package.
package library
