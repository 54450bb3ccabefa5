// Package collections materializes the fixed set of smart
// collections from the media index.
package collections
