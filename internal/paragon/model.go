package paragon

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/evcraddock/listings/internal/geocode"
)

// Property is a RESO Property record. Fields the application reads are
// typed; every other field the feed returns is kept in Extra and written
// back out unchanged.
type Property struct {
	ListingKey        string   `json:"ListingKey"`
	ListingID         string   `json:"ListingId"`
	StandardStatus    string   `json:"StandardStatus,omitempty"`
	LeaseConsideredYN *bool    `json:"LeaseConsideredYN"`
	ListPrice         *float64 `json:"ListPrice,omitempty"`
	PropertyType      string   `json:"PropertyType,omitempty"`
	UnparsedAddress   string   `json:"UnparsedAddress,omitempty"`
	StreetNumber      string   `json:"StreetNumber,omitempty"`
	StreetName        string   `json:"StreetName,omitempty"`
	City              string   `json:"City,omitempty"`
	CountyOrParish    string   `json:"CountyOrParish,omitempty"`
	StateOrProvince   string   `json:"StateOrProvince,omitempty"`
	PostalCode        string   `json:"PostalCode,omitempty"`
	Latitude          *float64 `json:"Latitude"`
	Longitude         *float64 `json:"Longitude"`
	BedroomsTotal     *int     `json:"BedroomsTotal,omitempty"`
	BathroomsFull     *int     `json:"BathroomsFull,omitempty"`
	BathroomsHalf     *int     `json:"BathroomsHalf,omitempty"`
	LivingArea        *float64 `json:"LivingArea,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// propertyFields has Property's layout without its JSON methods.
type propertyFields Property

// UnmarshalJSON decodes the typed fields and keeps the rest in Extra.
// A typed field whose value would be omitted on encode (an empty string
// or null under omitempty) keeps its raw value in Extra, so the record
// is written back with every key the feed sent.
func (p *Property) UnmarshalJSON(data []byte) error {
	var fields propertyFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	emitted, err := typedFieldMap(fields)
	if err != nil {
		return err
	}
	for k := range emitted {
		delete(raw, k)
	}
	if len(raw) > 0 {
		fields.Extra = raw
	} else {
		fields.Extra = nil
	}

	*p = Property(fields)
	return nil
}

func typedFieldMap(fields propertyFields) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalJSON writes the typed fields merged with Extra.
func (p Property) MarshalJSON() ([]byte, error) {
	m, err := p.fieldMap()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (p Property) fieldMap() (map[string]json.RawMessage, error) {
	m, err := typedFieldMap(propertyFields(p))
	if err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, typed := m[k]; !typed {
			m[k] = v
		}
	}
	return m, nil
}

// RoomCount is the room total used by the minRooms/maxRooms filters:
// bedrooms + full baths + half baths. The feed has no native room total.
func (p Property) RoomCount() int {
	n := 0
	for _, v := range []*int{p.BedroomsTotal, p.BathroomsFull, p.BathroomsHalf} {
		if v != nil {
			n += *v
		}
	}
	return n
}

// Coordinates returns the listing's location when both parts are set.
func (p Property) Coordinates() (geocode.Point, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return geocode.Point{}, false
	}
	return geocode.Point{Lat: *p.Latitude, Lng: *p.Longitude}, true
}

// Address returns a single-line address suitable for geocoding.
func (p Property) Address() string {
	street := p.UnparsedAddress
	if street == "" {
		street = strings.TrimSpace(p.StreetNumber + " " + p.StreetName)
	}
	var parts []string
	for _, s := range []string{street, p.City, strings.TrimSpace(p.StateOrProvince + " " + p.PostalCode)} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Media is a photo or document attached to one Property through
// ResourceRecordKey, which equals the owner's ListingKey.
type Media struct {
	MediaKey              string `json:"MediaKey"`
	ResourceRecordKey     string `json:"ResourceRecordKey"`
	MediaURL              string `json:"MediaURL"`
	Order                 *int   `json:"Order,omitempty"`
	MediaCategory         string `json:"MediaCategory,omitempty"`
	ShortDescription      string `json:"ShortDescription,omitempty"`
	ModificationTimestamp string `json:"ModificationTimestamp,omitempty"`
}

// PropertyWithMedia is a Property with its media list attached. Media is
// nil when media was not requested and an empty slice when none exists.
type PropertyWithMedia struct {
	Property
	Media []Media `json:"Media,omitempty"`
}

// MarshalJSON writes the property fields with a Media array when set.
func (p PropertyWithMedia) MarshalJSON() ([]byte, error) {
	m, err := p.Property.fieldMap()
	if err != nil {
		return nil, err
	}
	if p.Media != nil {
		b, err := json.Marshal(p.Media)
		if err != nil {
			return nil, err
		}
		m["Media"] = b
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads a property and an optional Media array.
func (p *PropertyWithMedia) UnmarshalJSON(data []byte) error {
	var prop Property
	if err := prop.UnmarshalJSON(data); err != nil {
		return err
	}

	var media []Media
	if raw, ok := prop.Extra["Media"]; ok {
		if err := json.Unmarshal(raw, &media); err != nil {
			return err
		}
		if media == nil {
			media = []Media{}
		}
		delete(prop.Extra, "Media")
		if len(prop.Extra) == 0 {
			prop.Extra = nil
		}
	}

	p.Property = prop
	p.Media = media
	return nil
}

// Envelope is an OData collection response.
type Envelope[T any] struct {
	Context  string `json:"@odata.context,omitempty"`
	NextLink string `json:"@odata.nextLink,omitempty"`
	Count    *int   `json:"@odata.count,omitempty"`
	Value    []T    `json:"value"`
}

func withoutMedia(props []Property) []PropertyWithMedia {
	out := make([]PropertyWithMedia, len(props))
	for i, p := range props {
		out[i] = PropertyWithMedia{Property: p}
	}
	return out
}
