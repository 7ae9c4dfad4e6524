package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
)

var (
	testDB     *TestDB
	testServer *TestServer
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	ctx := context.Background()

	var err error
	testDB, err = SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}

	testServer = NewTestServer(testDB.DB)

	code := m.Run()

	testServer.Close()
	if err := testDB.Teardown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "teardown failed: %v\n", err)
	}

	os.Exit(code)
}

// resetTables truncates mutable tables between tests
func resetTables(t *testing.T) {
	t.Helper()
	if err := testDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("failed to clean tables: %v", err)
	}
}
