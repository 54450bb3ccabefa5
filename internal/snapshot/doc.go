// Package snapshot persists the media item catalog to SQLite so a
// restart can reconcile against the asset source instead of
// re-analyzing the whole library.
package snapshot
