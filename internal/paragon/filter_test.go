package paragon

import (
	"fmt"
	"strings"
	"testing"

	"github.com/evcraddock/listings/internal/geocode"
)

func TestBuildPropertyFilter(t *testing.T) {
	base := "StandardStatus eq 'Active' and (LeaseConsideredYN eq false or LeaseConsideredYN eq null)"

	tests := []struct {
		name string
		crit FilterCriteria
		want string
	}{
		{"no location", FilterCriteria{}, base},
		{
			"zip equality",
			FilterCriteria{Location: &LocationPredicate{Field: "PostalCode", Value: "53703"}},
			base + " and PostalCode eq '53703'",
		},
		{
			"city contains with quote",
			FilterCriteria{Location: &LocationPredicate{Field: "City", Value: "O'Fallon", Match: MatchContains}},
			base + " and contains(City, 'O''Fallon')",
		},
		{
			"case-insensitive address",
			FilterCriteria{Location: &LocationPredicate{Field: "UnparsedAddress", Value: "123 Main St", Match: MatchEqualsFold}},
			base + " and tolower(UnparsedAddress) eq '123 main st'",
		},
		{
			"bounding box",
			FilterCriteria{Box: &geocode.Box{MinLat: 43, MaxLat: 44.5, MinLng: -90.25, MaxLng: -89}},
			base + " and Latitude ge 43.000000 and Latitude le 44.500000 and Longitude ge -90.250000 and Longitude le -89.000000",
		},
		{
			"allow-list",
			FilterCriteria{AllowedPostalCodes: []string{"53703", "53715"}},
			base + " and (PostalCode eq '53703' or PostalCode eq '53715')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildPropertyFilter(tt.crit); got != tt.want {
				t.Errorf("BuildPropertyFilter =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}

func TestPartitionIDsIntoFilterBatches(t *testing.T) {
	const (
		baseLen = 100
		maxLen  = 2048
	)
	ids := make([]string, 10000)
	for i := range ids {
		ids[i] = fmt.Sprintf("%010d", i)
	}

	batches := PartitionIDsIntoFilterBatches(ids, baseLen, maxLen)

	// Each encoded term is 41 bytes and each encoded " or " is 8, so a
	// batch of n ids costs 49n-8. With 1948 bytes available, 39 fit.
	if want := (len(ids) + 38) / 39; len(batches) != want {
		t.Errorf("got %d batches, want %d", len(batches), want)
	}

	var got []string
	for i, b := range batches {
		if n := baseLen + len(encodeQueryValue(b)); n > maxLen {
			t.Errorf("batch %d URL length %d exceeds %d", i, n, maxLen)
		}
		for _, term := range strings.Split(b, orSeparator) {
			got = append(got, strings.TrimSuffix(strings.TrimPrefix(term, "ResourceRecordKey eq '"), "'"))
		}
	}
	if len(got) != len(ids) {
		t.Fatalf("batches hold %d ids, want %d", len(got), len(ids))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("id %d = %q, want %q", i, got[i], ids[i])
		}
	}
}

func TestPartitionIDsIntoFilterBatchesEdges(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		if got := PartitionIDsIntoFilterBatches(nil, 100, 2048); len(got) != 0 {
			t.Errorf("got %d batches, want 0", len(got))
		}
	})

	t.Run("oversized id gets its own batch", func(t *testing.T) {
		long := strings.Repeat("x", 300)
		got := PartitionIDsIntoFilterBatches([]string{"a", long, "b"}, 0, 200)
		if len(got) != 3 {
			t.Fatalf("got %d batches, want 3: %q", len(got), got)
		}
		if !strings.Contains(got[1], long) {
			t.Errorf("batch 1 = %q, want the long id", got[1])
		}
	})

	t.Run("default limit", func(t *testing.T) {
		ids := make([]string, 100)
		for i := range ids {
			ids[i] = fmt.Sprintf("%010d", i)
		}
		withDefault := PartitionIDsIntoFilterBatches(ids, 100, 0)
		explicit := PartitionIDsIntoFilterBatches(ids, 100, defaultMaxURLLength)
		if len(withDefault) != len(explicit) {
			t.Errorf("default limit gave %d batches, 2048 gave %d", len(withDefault), len(explicit))
		}
	})

	t.Run("quotes count at encoded length", func(t *testing.T) {
		got := PartitionIDsIntoFilterBatches([]string{"it's"}, 0, 2048)
		if len(got) != 1 || got[0] != "ResourceRecordKey eq 'it''s'" {
			t.Errorf("got %q", got)
		}
	})
}
