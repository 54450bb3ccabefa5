// Package voice adapts streamed speech transcripts into searches.
// Capture is modeled as an exclusive session: only one voice query
// may hold the input device at a time.
package voice
