// Package delegate routes a request from one persona to another. A delegation
// is a single synchronous one-off completion: the target persona's system
// prompt plus the caller's prompt, with no tools and no session state. The
// outcome folds back into the caller's conversation as a tool result or as a
// one-off reply; delegation errors are rendered as display strings at that
// boundary and never escape it.
package delegate
