// Package registry publishes release artifacts to a package registry.
//
// Two implementations are provided. S3 stores each version under
// <prefix>/<tag>/ in a bucket and commits it by writing manifest.json
// last, conditionally, so a version can be published exactly once. Memory
// keeps the same conflict semantics in process and backs dry runs.
package registry
