package paragon

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/listings/internal/metrics"
)

// AttachMedia fetches Media for props and returns them in input order,
// each with a deduplicated, Order-sorted media list (empty, never nil).
// Listing keys are split into URL-length-bounded filter batches that run
// concurrently; a failed batch is logged and its properties get no media.
func (c *Client) AttachMedia(ctx context.Context, props []Property) []PropertyWithMedia {
	out := make([]PropertyWithMedia, len(props))
	if len(props) == 0 {
		return out
	}

	keys := listingKeys(props)
	prefix := c.filterPrefix(resourceMedia, c.cfg.PageSize)
	batches := PartitionIDsIntoFilterBatches(keys, len(prefix), c.cfg.MaxURLLength)

	var mu sync.Mutex
	byKey := make(map[string][]Media, len(keys))

	var g errgroup.Group
	g.SetLimit(c.cfg.MediaConcurrency)
	for i, filter := range batches {
		g.Go(func() error {
			env, err := getAll[Media](ctx, c, resourceMedia, prefix+encodeQueryValue(filter), 0)
			if err != nil {
				metrics.MediaBatches.WithLabelValues("failure").Inc()
				slog.Warn("media batch failed", "batch", i, "batches", len(batches), "error", err)
				return nil
			}
			metrics.MediaBatches.WithLabelValues("success").Inc()

			mu.Lock()
			defer mu.Unlock()
			for _, m := range env.Value {
				byKey[m.ResourceRecordKey] = append(byKey[m.ResourceRecordKey], m)
			}
			return nil
		})
	}
	// Batches report failure by logging; Wait only joins them.
	_ = g.Wait()

	for i, p := range props {
		out[i] = PropertyWithMedia{Property: p, Media: orderMedia(byKey[p.ListingKey])}
	}
	return out
}

// listingKeys returns the distinct non-empty listing keys in input order.
func listingKeys(props []Property) []string {
	seen := make(map[string]struct{}, len(props))
	keys := make([]string, 0, len(props))
	for _, p := range props {
		if p.ListingKey == "" {
			continue
		}
		if _, ok := seen[p.ListingKey]; ok {
			continue
		}
		seen[p.ListingKey] = struct{}{}
		keys = append(keys, p.ListingKey)
	}
	return keys
}

// orderMedia drops repeated MediaKeys (first one wins) and sorts by
// Order ascending, with unordered items last.
func orderMedia(items []Media) []Media {
	out := make([]Media, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, m := range items {
		if m.MediaKey != "" {
			if _, dup := seen[m.MediaKey]; dup {
				continue
			}
			seen[m.MediaKey] = struct{}{}
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, compareMediaOrder)
	return out
}

// compareMediaOrder sorts by Order ascending with missing orders last,
// then by MediaKey.
func compareMediaOrder(a, b Media) int {
	switch {
	case a.Order == nil && b.Order == nil:
		return cmp.Compare(a.MediaKey, b.MediaKey)
	case a.Order == nil:
		return 1
	case b.Order == nil:
		return -1
	}
	if c := cmp.Compare(*a.Order, *b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.MediaKey, b.MediaKey)
}
