package paragon

import (
	"errors"
	"fmt"
)

// ErrRunawayPagination is matched by FeedErrors raised when a query
// follows more next links than the configured page ceiling.
var ErrRunawayPagination = errors.New("runaway pagination")

// ValidationError reports bad or missing caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthError reports a failed client-credentials token exchange.
type AuthError struct {
	Status int // upstream HTTP status, 0 when the request never completed
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token exchange failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FeedErrorKind classifies a FeedError.
type FeedErrorKind int

const (
	FeedTransport FeedErrorKind = iota
	FeedStatus
	FeedParse
	FeedRunawayPagination
)

func (k FeedErrorKind) String() string {
	switch k {
	case FeedTransport:
		return "transport"
	case FeedStatus:
		return "status"
	case FeedParse:
		return "parse"
	case FeedRunawayPagination:
		return "runaway_pagination"
	}
	return "unknown"
}

// FeedError reports a failed or unusable response from the resource endpoint.
type FeedError struct {
	Kind   FeedErrorKind
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *FeedError) Error() string {
	switch e.Kind {
	case FeedStatus:
		return fmt.Sprintf("feed returned status %d for %s: %s", e.Status, e.URL, e.Body)
	case FeedParse:
		return fmt.Sprintf("feed returned unparsable response for %s: %v", e.URL, e.Err)
	case FeedRunawayPagination:
		return fmt.Sprintf("feed pagination exceeded page limit for %s", e.URL)
	}
	return fmt.Sprintf("feed request failed for %s: %v", e.URL, e.Err)
}

func (e *FeedError) Unwrap() error {
	if e.Kind == FeedRunawayPagination {
		return ErrRunawayPagination
	}
	return e.Err
}

// EnrichmentError reports a failed geocoding lookup for one property.
type EnrichmentError struct {
	ListingKey string
	Err        error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("geocoding listing %s: %v", e.ListingKey, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
