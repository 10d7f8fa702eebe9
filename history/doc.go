// Package history persists conversation transcripts keyed by session key
// (provider plus persona). The store is schema-agnostic: transcripts are
// opaque provider-native JSON and are returned exactly as saved. Shape
// detection is provided for render-time branching only; the store itself never
// inspects a transcript.
package history
