package ids

import (
	"sort"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestCreateULID(t *testing.T) {
	id := CreateULID()
	if len(id) != 26 {
		t.Fatalf("len = %d, want 26", len(id))
	}
	if _, err := ulid.Parse(id); err != nil {
		t.Fatalf("generated ULID does not parse: %v", err)
	}
}

func TestCreateULIDUniqueAndSortable(t *testing.T) {
	const n = 1000

	seen := make(map[string]struct{}, n)
	generated := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := CreateULID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ULID %q", id)
		}
		seen[id] = struct{}{}
		generated = append(generated, id)
	}

	if !sort.StringsAreSorted(generated) {
		t.Error("ULIDs generated in sequence must sort in creation order")
	}
}
