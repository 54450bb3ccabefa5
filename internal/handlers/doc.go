// Package handlers implements the HTTP API surface of the media
// library: search, smart collections, ingestion control, favorites,
// face clusters, voice search and operational endpoints.
package handlers
