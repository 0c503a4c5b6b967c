package materializer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/iconidentify/quickstage/internal/domain"
)

func mi(src string) domain.MaterializedItem {
	return domain.MaterializedItem{OriginalSource: src, LocalPath: "/cache/" + src}
}

// unplaced tags items with an unknown position.
func unplaced(items ...domain.MaterializedItem) []Placed {
	out := make([]Placed, len(items))
	for i, it := range items {
		out[i] = Placed{Index: -1, Item: it}
	}
	return out
}

func TestReassemble(t *testing.T) {
	items := []domain.Item{{Source: "a"}, {Source: "b"}, {Source: "c"}, {Source: "d"}}

	tests := []struct {
		name      string
		successes []Placed
		want      []string
	}{
		{"by index", []Placed{{3, mi("d")}, {1, mi("b")}, {0, mi("a")}}, []string{"a", "b", "d"}},
		{"reversed without index", unplaced(mi("d"), mi("c"), mi("b"), mi("a")), []string{"a", "b", "c", "d"}},
		{"with gaps", unplaced(mi("c"), mi("a")), []string{"a", "c"}},
		{"unmatched last and stable", unplaced(mi("x"), mi("b"), mi("y"), mi("a")), []string{"a", "b", "x", "y"}},
		{"index of another source falls back", []Placed{{0, mi("c")}, {2, mi("a")}}, []string{"a", "c"}},
		{"index out of range falls back", []Placed{{9, mi("b")}, {0, mi("a")}}, []string{"a", "b"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sources(Reassemble(items, tt.successes))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReassemble_RepeatedSources(t *testing.T) {
	items := []domain.Item{{Source: "a"}, {Source: "b"}, {Source: "a"}}
	first := domain.MaterializedItem{OriginalSource: "a", DisplayTitle: "first"}
	second := domain.MaterializedItem{OriginalSource: "a", DisplayTitle: "second"}

	t.Run("by index", func(t *testing.T) {
		got := Reassemble(items, []Placed{{2, second}, {1, mi("b")}, {0, first}})
		want := []domain.MaterializedItem{first, mi("b"), second}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("without index copies take successive positions", func(t *testing.T) {
		got := Reassemble(items, unplaced(mi("b"), first, second))
		want := []domain.MaterializedItem{first, mi("b"), second}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestReassemble_DoesNotMutateInput(t *testing.T) {
	successes := unplaced(mi("b"), mi("a"))
	Reassemble([]domain.Item{{Source: "a"}, {Source: "b"}}, successes)
	if successes[0].Item.OriginalSource != "b" {
		t.Error("Reassemble should not reorder its input slice")
	}
}

func TestReport(t *testing.T) {
	items := []domain.Item{{Source: "a"}, {Source: "b"}}
	fail := map[string]error{"b": domain.NewFetchError("b", errors.New("x"))}

	t.Run("success", func(t *testing.T) {
		res, err := report(items, []Placed{{1, mi("b")}, {0, mi("a")}}, nil)
		if err != nil || res.Failures != nil {
			t.Fatalf("report() = %+v, %v", res, err)
		}
		if diff := cmp.Diff([]string{"a", "b"}, sources(res.Items)); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("partial", func(t *testing.T) {
		res, err := report(items, []Placed{{0, mi("a")}}, fail)
		if err != nil {
			t.Fatalf("report() error = %v", err)
		}
		if res.Failures.Len() != 1 {
			t.Errorf("Failures.Len() = %d, want 1", res.Failures.Len())
		}
	})

	t.Run("total failure", func(t *testing.T) {
		res, err := report(items, nil, fail)
		if res != nil {
			t.Errorf("result = %+v, want nil", res)
		}
		var derr *domain.DownloadError
		if !errors.As(err, &derr) {
			t.Errorf("error = %v, want *DownloadError", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		res, err := report(nil, nil, nil)
		if err != nil || res == nil || len(res.Items) != 0 {
			t.Errorf("report() = %+v, %v, want empty success", res, err)
		}
	})
}
