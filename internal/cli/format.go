package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/evcraddock/listings/internal/paragon"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPropertySummary prints a single listing in text format.
func printPropertySummary(w io.Writer, p *paragon.PropertyWithMedia) {
	fmt.Fprintf(w, "Listing %s\n", p.ListingID)
	fmt.Fprintf(w, "  Address:  %s\n", p.Address())
	if p.ListPrice != nil {
		fmt.Fprintf(w, "  Price:    %s\n", formatPrice(*p.ListPrice))
	}
	if p.PropertyType != "" {
		fmt.Fprintf(w, "  Type:     %s\n", p.PropertyType)
	}
	if p.BedroomsTotal != nil {
		fmt.Fprintf(w, "  Beds:     %d\n", *p.BedroomsTotal)
	}
	if p.BathroomsFull != nil || p.BathroomsHalf != nil {
		fmt.Fprintf(w, "  Baths:    %s\n", formatBaths(p.Property))
	}
	if p.LivingArea != nil {
		fmt.Fprintf(w, "  Sqft:     %s\n", formatThousands(int64(math.Round(*p.LivingArea))))
	}
	if p.CountyOrParish != "" {
		fmt.Fprintf(w, "  County:   %s\n", p.CountyOrParish)
	}
	if pt, ok := p.Coordinates(); ok {
		fmt.Fprintf(w, "  Location: %.5f, %.5f\n", pt.Lat, pt.Lng)
	}
	fmt.Fprintf(w, "  Key:      %s\n", p.ListingKey)

	if len(p.Media) > 0 {
		fmt.Fprintf(w, "\nPhotos (%d):\n", len(p.Media))
		for _, m := range p.Media {
			fmt.Fprintf(w, "  %s\n", m.MediaURL)
		}
	}
}

// printPropertyTable prints search results as a formatted table.
func printPropertyTable(out io.Writer, env *paragon.Envelope[paragon.PropertyWithMedia]) error {
	if len(env.Value) == 0 {
		fmt.Fprintln(out, "No listings found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "LISTING\tADDRESS\tPRICE\tBED\tBATH\tTYPE\tPHOTOS"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "-------\t-------\t-----\t---\t----\t----\t------"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, p := range env.Value {
		price := "-"
		if p.ListPrice != nil {
			price = formatPrice(*p.ListPrice)
		}
		beds := "-"
		if p.BedroomsTotal != nil {
			beds = strconv.Itoa(*p.BedroomsTotal)
		}
		baths := "-"
		if p.BathroomsFull != nil || p.BathroomsHalf != nil {
			baths = formatBaths(p.Property)
		}
		propType := p.PropertyType
		if propType == "" {
			propType = "-"
		}
		photos := "-"
		if p.Media != nil {
			photos = strconv.Itoa(len(p.Media))
		}

		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ListingID, truncate(p.Address(), 40), price, beds, baths, propType, photos); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	total := len(env.Value)
	if env.Count != nil && *env.Count > total {
		fmt.Fprintf(out, "\nShowing %d of %d listings\n", total, *env.Count)
	} else {
		fmt.Fprintf(out, "\nTotal: %d listings\n", total)
	}
	return nil
}

// formatPrice formats a dollar amount rounded to whole dollars.
func formatPrice(dollars float64) string {
	return "$" + formatThousands(int64(math.Round(dollars)))
}

// formatThousands formats n with comma separators.
func formatThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	s := strconv.FormatInt(n, 10)

	// Add commas
	if len(s) <= 3 {
		return sign + s
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	return sign + strings.Join(parts, ",")
}

// formatBaths renders full and half baths as "2.5" style totals.
func formatBaths(p paragon.Property) string {
	full, half := 0, 0
	if p.BathroomsFull != nil {
		full = *p.BathroomsFull
	}
	if p.BathroomsHalf != nil {
		half = *p.BathroomsHalf
	}
	return strconv.FormatFloat(float64(full)+0.5*float64(half), 'f', -1, 64)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
