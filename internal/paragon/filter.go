package paragon

import (
	"strconv"
	"strings"

	"github.com/evcraddock/listings/internal/geocode"
)

const (
	activeStatusPredicate = "StandardStatus eq 'Active'"
	saleOnlyPredicate     = "(LeaseConsideredYN eq false or LeaseConsideredYN eq null)"
	mediaKeyField         = "ResourceRecordKey"
	orSeparator           = " or "
)

// MatchKind selects how a location predicate compares its field.
type MatchKind int

const (
	MatchEquals MatchKind = iota
	MatchContains
	MatchEqualsFold
)

// LocationPredicate restricts a property query to one location field.
type LocationPredicate struct {
	Field string
	Value string
	Match MatchKind
}

func (l LocationPredicate) expr() string {
	switch l.Match {
	case MatchContains:
		return "contains(" + l.Field + ", " + quote(l.Value) + ")"
	case MatchEqualsFold:
		return "tolower(" + l.Field + ") eq " + quote(strings.ToLower(l.Value))
	}
	return l.Field + " eq " + quote(l.Value)
}

// FilterCriteria is the input to BuildPropertyFilter.
type FilterCriteria struct {
	Location           *LocationPredicate
	Box                *geocode.Box
	AllowedPostalCodes []string
}

// BuildPropertyFilter returns the $filter expression for a property
// search: active status, sale listings only (lease flag false or null),
// at most one location predicate, an optional coordinate box, and the
// postal-code allow-list when one is configured. Terms are and-joined.
func BuildPropertyFilter(c FilterCriteria) string {
	parts := []string{activeStatusPredicate, saleOnlyPredicate}

	if c.Location != nil {
		parts = append(parts, c.Location.expr())
	}

	if b := c.Box; b != nil {
		parts = append(parts,
			"Latitude ge "+formatCoord(b.MinLat),
			"Latitude le "+formatCoord(b.MaxLat),
			"Longitude ge "+formatCoord(b.MinLng),
			"Longitude le "+formatCoord(b.MaxLng),
		)
	}

	if len(c.AllowedPostalCodes) > 0 {
		zips := make([]string, 0, len(c.AllowedPostalCodes))
		for _, z := range c.AllowedPostalCodes {
			zips = append(zips, "PostalCode eq "+quote(z))
		}
		parts = append(parts, "("+strings.Join(zips, orSeparator)+")")
	}

	return strings.Join(parts, " and ")
}

// PartitionIDsIntoFilterBatches packs ids into or-joined
// "ResourceRecordKey eq '<id>'" filters such that
// baseURLLength + len(encoded filter) <= maxURLLength for every batch.
// Packing is greedy and sequential: input order is kept and a batch is
// closed only when the next id would not fit. An id too long to fit
// even alone still gets its own batch. A maxURLLength <= 0 means 2048.
func PartitionIDsIntoFilterBatches(ids []string, baseURLLength, maxURLLength int) []string {
	if maxURLLength <= 0 {
		maxURLLength = defaultMaxURLLength
	}
	sepLen := len(encodeQueryValue(orSeparator))

	var batches []string
	var terms []string
	size := 0

	flush := func() {
		if len(terms) > 0 {
			batches = append(batches, strings.Join(terms, orSeparator))
			terms = terms[:0]
			size = 0
		}
	}

	for _, id := range ids {
		term := mediaKeyField + " eq " + quote(id)
		termLen := len(encodeQueryValue(term))

		if len(terms) > 0 && baseURLLength+size+sepLen+termLen > maxURLLength {
			flush()
		}
		if len(terms) > 0 {
			size += sepLen
		}
		terms = append(terms, term)
		size += termLen
	}
	flush()

	return batches
}

// quote renders an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
