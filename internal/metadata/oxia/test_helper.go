package oxia

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oxia-db/oxia/oxiad/dataserver"
)

// Integration tests run against an embedded standalone server by
// default. Set RIVULET_TEST_OXIA_ADDR to point them at a running
// cluster instead.
const externalAddrEnv = "RIVULET_TEST_OXIA_ADDR"

// startOxia returns the service address of an Oxia server for one test:
// the cluster named by RIVULET_TEST_OXIA_ADDR if set, otherwise an
// embedded standalone server torn down with the test.
func startOxia(t *testing.T) string {
	t.Helper()

	if addr := os.Getenv(externalAddrEnv); addr != "" {
		t.Logf("using external Oxia at %s", addr)
		return addr
	}

	standalone, err := dataserver.NewStandalone(dataserver.NewTestConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("start embedded Oxia: %v", err)
	}
	t.Cleanup(func() {
		if err := standalone.Close(); err != nil {
			t.Errorf("close embedded Oxia: %v", err)
		}
	})
	return standalone.ServiceAddr()
}

// newTestStore opens a Store against a per-test Oxia server. Each test
// gets its own server, so keys never leak between tests. The standalone
// server provisions only the default namespace.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), Config{
		ServiceAddress: startOxia(t),
		Namespace:      "default",
		RequestTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
