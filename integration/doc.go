//go:build integration

// Package integration provides end-to-end tests for ziptoc against real
// storage services.
//
// These tests require Docker and start MinIO and an OCI registry using
// testcontainers. Run with: go test -tags=integration ./integration/...
// Set SKIP_DOCKER_TESTS=1 to skip them.
package integration
