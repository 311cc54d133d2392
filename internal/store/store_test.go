package store

import (
	"encoding/json"
	"testing"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

func rawEvents(n int) []types.Event {
	out := make([]types.Event, n)
	for i := range out {
		b, _ := json.Marshal(map[string]int{"i": i})
		out[i] = b
	}
	return out
}

func TestPaginateMiddleSlice(t *testing.T) {
	all := rawEvents(10)
	got := paginate(all, 3, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
	var first map[string]int
	if err := json.Unmarshal(got[0], &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first["i"] != 3 {
		t.Fatalf("expected first event index 3, got %d", first["i"])
	}
}

func TestPaginateFromIndexBeyondTotalIsEmpty(t *testing.T) {
	all := rawEvents(5)
	got := paginate(all, 5, 10)
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %d events", len(got))
	}
	got = paginate(all, 100, 10)
	if len(got) != 0 {
		t.Fatalf("expected empty slice for far-out-of-range fromIndex, got %d events", len(got))
	}
}

func TestPaginateNegativeFromIndexClampsToZero(t *testing.T) {
	all := rawEvents(3)
	got := paginate(all, -5, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
}

func TestPaginateZeroLimitReturnsRemainder(t *testing.T) {
	all := rawEvents(6)
	got := paginate(all, 2, 0)
	if len(got) != 4 {
		t.Fatalf("expected remainder of 4 events, got %d", len(got))
	}
}

func TestPaginateLimitExceedingRemainderIsClamped(t *testing.T) {
	all := rawEvents(4)
	got := paginate(all, 2, 100)
	if len(got) != 2 {
		t.Fatalf("expected clamped remainder of 2 events, got %d", len(got))
	}
}

func TestPaginateEmptyAll(t *testing.T) {
	got := paginate(nil, 0, 10)
	if len(got) != 0 {
		t.Fatalf("expected empty slice for empty input, got %d events", len(got))
	}
}
