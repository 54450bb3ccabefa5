// Package query evaluates free-text searches with structured filters
// against the media index and returns a deterministic ranked ordering.
package query
