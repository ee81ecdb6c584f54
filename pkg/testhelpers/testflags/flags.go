package testflags

import (
	"flag"
	"testing"
)

// Only unit tests run by default. Integration tests bring up a local RPC
// server or an on-disk journal and need -integration.
var integrationTest = flag.Bool("integration", false, "Run the integration go tests")
var unitTest = flag.Bool("unit", true, "Run the unit go tests")

// IntegrationTest runs the calling test iff `-integration` is passed to
// `go test`, and runs it in parallel.
func IntegrationTest(t *testing.T) {
	if !*integrationTest {
		t.SkipNow()
	}
	t.Parallel()
}

// UnitTest runs the calling test iff the `-unit` or `-short` flag is set,
// and runs it in parallel.
func UnitTest(t *testing.T) {
	if !*unitTest && !testing.Short() {
		t.SkipNow()
	}
	t.Parallel()
}
