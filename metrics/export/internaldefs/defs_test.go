package internaldefs

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maxmusicschool/schoolauth"
)

func TestBucketHelpers(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cumulative buckets (-want +got):\n%s", diff)
	}

	long := NormalizeBuckets([]uint64{1, 1, 1, 1, 1, 1, 1, 1, 9})
	if long[7] != 1 {
		t.Fatalf("extra buckets must be ignored, got %v", long)
	}
}

func TestCounterDefsAreUniqueAndPrefixed(t *testing.T) {
	names := make(map[string]bool)
	ids := make(map[schoolauth.MetricID]bool)
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "schoolauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q does not follow the naming scheme", def.Name)
		}
		if names[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate counter definition %q", def.Name)
		}
		if def.ID == schoolauth.MetricValidateLatency {
			t.Fatalf("histogram id listed as counter")
		}
		names[def.Name] = true
		ids[def.ID] = true
	}
	if len(HistogramBounds) != len(HistogramBoundSuffix) {
		t.Fatalf("bounds and suffixes differ in length")
	}
}
