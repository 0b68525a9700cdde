package scope

import (
	"context"
	"testing"
)

func TestCaptureEmpty(t *testing.T) {
	if got := Capture(context.Background()); got != "" {
		t.Fatalf("expected empty tenant, got %q", got)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := Restore(context.Background(), "tenant-42")
	if got := Capture(ctx); got != "tenant-42" {
		t.Fatalf("expected tenant-42, got %q", got)
	}
}

func TestRestoreEmptyIsNoop(t *testing.T) {
	base := context.Background()
	if ctx := Restore(base, ""); ctx != base {
		t.Fatal("empty tenant should return the original context")
	}
}
