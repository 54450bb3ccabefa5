// Package analyzer defines the pluggable analysis capability set.
//
// Each capability (tagging, text recognition, face detection,
// geocoding) is an independent interface; an Analyzer bundles whichever
// subset a provider implements. The scheduler treats missing
// capabilities as no-ops and isolates per-capability failures: one
// capability failing never blocks the others.
//
// The analysis algorithms themselves are external; this package fixes
// their contracts and failure classification, and provides Remote, an
// HTTP client for an analysis service implementing all four.
package analyzer
