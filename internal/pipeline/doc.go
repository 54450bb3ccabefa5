// Package pipeline owns the analysis pipeline: it wires the asset
// source, ingestion coordinator, scheduler, index, collections and
// snapshot store together and exposes change notifications to
// external consumers.
package pipeline
