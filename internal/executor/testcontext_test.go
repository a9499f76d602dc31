package executor_test

import (
	"context"
	"testing"
)

// testContext stands in for testing.T.Context, which requires Go 1.24;
// this module is built with an older toolchain.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
