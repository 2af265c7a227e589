// Package oxia provides the Oxia-backed implementation of the
// metadata.MetadataStore interface.
//
// The controller stores all stream metadata as versioned keys in a
// single Oxia namespace. Optimistic versioning (compare-and-set on the
// Oxia version id) is the only concurrency control the seal workflow
// needs: every workflow step re-reads current state, and conflicting
// writers surface as metadata.ErrVersionMismatch.
//
// Version translation: Oxia version ids start at 0 for a fresh key,
// while the metadata interface reserves 0 for "never written". The
// store shifts versions by one in each direction at the boundary.
//
// Integration tests run against an embedded Oxia standalone server
// (see test_helper.go) or an external cluster when
// RIVULET_TEST_OXIA_ADDR is set.
package oxia
