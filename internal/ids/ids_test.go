package ids

import (
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id := NewAt(at)
	got, ok := Time(id)
	if !ok {
		t.Fatalf("expected parsable id %q", id)
	}
	if !got.Equal(at) {
		t.Fatalf("unexpected time %v", got)
	}
	if _, ok := Time("not-an-id"); ok {
		t.Fatalf("expected invalid id to fail")
	}
}
