// Package source defines the AssetSource collaborator the pipeline
// ingests from, plus a filesystem implementation.
//
// An AssetSource enumerates items with stable identity and content
// fingerprints and supplies raw content on demand. The fingerprint is a
// content-derived value; when it changes, the item is re-analyzed.
package source
