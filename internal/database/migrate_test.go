package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
			down := strings.TrimSuffix(e.Name(), ".up.sql") + ".down.sql"
			if _, statErr := fs.Stat(migrationFS, "migrations/"+down); statErr != nil {
				t.Errorf("%s has no matching %s", e.Name(), down)
			}
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}

func TestWhere_NumbersPlaceholders(t *testing.T) {
	w := &where{}
	w.add("a = ?", 1)
	w.add("b = ANY(?)", "x")
	clause := w.String() + w.paginate(10, 0)

	want := " WHERE a = $1 AND b = ANY($2) LIMIT $3"
	if clause != want {
		t.Errorf("got %q, want %q", clause, want)
	}
	if len(w.args) != 3 {
		t.Errorf("expected 3 args, got %d", len(w.args))
	}
}
