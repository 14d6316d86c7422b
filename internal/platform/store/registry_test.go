package store_test

import (
	"testing"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/sqlite"
)

func TestDriverRegistry(t *testing.T) {
	drivers := store.AvailableDrivers()

	expected := map[string]bool{"memory": true, "sqlite": true, "mirror": true}
	for _, d := range drivers {
		if !expected[d] {
			t.Logf("unexpected driver registered: %s", d)
		}
		delete(expected, d)
	}
	for d := range expected {
		t.Errorf("expected driver %q not registered", d)
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := store.New(&store.DriverConfig{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSQLiteRequiresDataDir(t *testing.T) {
	if _, err := store.New(&store.DriverConfig{Driver: "sqlite"}); err == nil {
		t.Fatal("expected error without data_dir")
	}
}
