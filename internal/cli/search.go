package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/listings/internal/paragon"
)

type searchFlags struct {
	id      string
	zip     string
	city    string
	county  string
	street  string
	address string
	radius  float64
	limit   int

	minPrice float64
	maxPrice float64
	minRooms int
	maxRooms int
	types    []string
	noMedia  bool
}

func newSearchCmd() *cobra.Command {
	var sf searchFlags

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search active listings",
		Long: "Search active sale listings by one location selector. With no selector " +
			"the whole feed is returned (use --limit to cap it).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDeps(cmd.Context(), os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			env, err := rt.properties.Search(cmd.Context(), sf.query(), sf.filters(cmd.Flags().Changed), !sf.noMedia)
			if err != nil {
				return err
			}

			if isJSON() {
				return printJSON(cmd.OutOrStdout(), env)
			}
			return printPropertyTable(cmd.OutOrStdout(), env)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sf.id, "id", "", "listing ID")
	f.StringVar(&sf.zip, "zip", "", "5-digit ZIP code")
	f.StringVar(&sf.city, "city", "", "city name (substring match)")
	f.StringVar(&sf.county, "county", "", "county name (substring match)")
	f.StringVar(&sf.street, "street", "", "street name (substring match)")
	f.StringVar(&sf.address, "address", "", "street address")
	f.Float64Var(&sf.radius, "radius", 0, "miles around --address (0 matches the address itself)")
	f.IntVar(&sf.limit, "limit", 0, "maximum listings without a location selector (0 is unlimited)")
	f.Float64Var(&sf.minPrice, "min-price", 0, "minimum list price")
	f.Float64Var(&sf.maxPrice, "max-price", 0, "maximum list price")
	f.IntVar(&sf.minRooms, "min-rooms", 0, "minimum rooms (beds + baths)")
	f.IntVar(&sf.maxRooms, "max-rooms", 0, "maximum rooms (beds + baths)")
	f.StringSliceVar(&sf.types, "type", nil, "property type (repeatable)")
	f.BoolVar(&sf.noMedia, "no-media", false, "skip fetching photos")

	cmd.MarkFlagsMutuallyExclusive("id", "zip", "city", "county", "street", "address")

	return cmd
}

// query returns the selected location query.
func (sf searchFlags) query() paragon.Query {
	switch {
	case sf.id != "":
		return paragon.ByID{ID: sf.id}
	case sf.zip != "":
		return paragon.ByZip{Zip: sf.zip}
	case sf.street != "":
		return paragon.ByStreet{Street: sf.street}
	case sf.city != "":
		return paragon.ByCity{City: sf.city}
	case sf.county != "":
		return paragon.ByCounty{County: sf.county}
	case sf.address != "":
		return paragon.ByAddress{Address: sf.address, RadiusMiles: sf.radius}
	}
	return paragon.All{Limit: sf.limit}
}

// filters returns the filters whose flags were set.
func (sf searchFlags) filters(changed func(name string) bool) paragon.Filters {
	var f paragon.Filters
	if changed("min-price") {
		f.MinPrice = &sf.minPrice
	}
	if changed("max-price") {
		f.MaxPrice = &sf.maxPrice
	}
	if changed("min-rooms") {
		f.MinRooms = &sf.minRooms
	}
	if changed("max-rooms") {
		f.MaxRooms = &sf.maxRooms
	}
	f.PropertyTypes = sf.types
	return f
}
