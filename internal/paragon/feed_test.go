package paragon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/evcraddock/listings/internal/kv"
)

const (
	testClientID     = "client-id"
	testClientSecret = "client-secret"
)

// fakeFeed serves a token endpoint and Property/Media collections. It
// understands the small subset of $filter the client generates.
type fakeFeed struct {
	t          *testing.T
	server     *httptest.Server
	properties []map[string]any
	media      []map[string]any

	// mediaStatus, when non-zero, fails every Media request with it.
	mediaStatus int
	expiresIn   int
	// propertyHandler replaces the Property collection when set.
	propertyHandler http.HandlerFunc

	mu         sync.Mutex
	filters    map[string][]string
	tokenCalls int
}

// newFakeFeed starts the fake after applying setup, which must not
// touch the fake again once requests are in flight.
func newFakeFeed(t *testing.T, setup ...func(*fakeFeed)) *fakeFeed {
	t.Helper()
	f := &fakeFeed{t: t, filters: make(map[string][]string), expiresIn: 3600}
	for _, fn := range setup {
		fn(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("GET /odata/Property", func(w http.ResponseWriter, r *http.Request) {
		if f.propertyHandler != nil {
			f.propertyHandler(w, r)
			return
		}
		f.handleCollection(w, r, resourceProperty, f.properties)
	})
	mux.HandleFunc("GET /odata/Media", func(w http.ResponseWriter, r *http.Request) {
		if f.mediaStatus != 0 {
			http.Error(w, "media unavailable", f.mediaStatus)
			return
		}
		f.handleCollection(w, r, resourceMedia, f.media)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFeed) config() Config {
	return Config{
		BaseURL:      f.server.URL + "/odata",
		TokenURL:     f.server.URL + "/token",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}
}

func (f *fakeFeed) client(opts ...Option) *Client {
	return f.clientWith(func(*Config) {}, opts...)
}

func (f *fakeFeed) clientWith(edit func(*Config), opts ...Option) *Client {
	f.t.Helper()
	cfg := f.config()
	edit(&cfg)
	c, err := New(cfg, kv.NewMemory(), opts...)
	if err != nil {
		f.t.Fatalf("New: %v", err)
	}
	return c
}

func (f *fakeFeed) seen(resource string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.filters[resource]...)
}

func (f *fakeFeed) exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func (f *fakeFeed) handleToken(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != testClientID || secret != testClientSecret {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}
	if got := r.PostForm.Get("scope"); got != tokenScope {
		f.t.Errorf("scope = %q, want %q", got, tokenScope)
	}

	f.mu.Lock()
	f.tokenCalls++
	n := f.tokenCalls
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	writeJSON(f.t, w, map[string]any{
		"access_token": fmt.Sprintf("tok-%d", n),
		"token_type":   "Bearer",
		"expires_in":   f.expiresIn,
	})
}

func (f *fakeFeed) handleCollection(w http.ResponseWriter, r *http.Request, resource string, records []map[string]any) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := q.Get("$filter")
	f.mu.Lock()
	f.filters[resource] = append(f.filters[resource], filter)
	f.mu.Unlock()

	var matched []map[string]any
	for _, rec := range records {
		if f.matches(filter, rec) {
			matched = append(matched, rec)
		}
	}

	skip, _ := strconv.Atoi(q.Get("$skip"))
	top, _ := strconv.Atoi(q.Get("$top"))
	if top <= 0 {
		top = len(matched)
	}
	end := min(skip+top, len(matched))
	page := []map[string]any{}
	if skip < len(matched) {
		page = matched[skip:end]
	}

	resp := map[string]any{
		"@odata.context": "$metadata#" + resource,
		"@odata.count":   len(matched),
		"value":          page,
	}
	if end < len(matched) {
		q.Set("$skip", strconv.Itoa(end))
		resp["@odata.nextLink"] = "http://" + r.Host + r.URL.Path + "?" + q.Encode()
	}
	writeJSON(f.t, w, resp)
}

var (
	eqStringRe  = regexp.MustCompile(`^(\w+) eq '((?:[^']|'')*)'$`)
	eqLiteralRe = regexp.MustCompile(`^(\w+) eq (true|false|null)$`)
	containsRe  = regexp.MustCompile(`^contains\((\w+), '((?:[^']|'')*)'\)$`)
	tolowerRe   = regexp.MustCompile(`^tolower\((\w+)\) eq '((?:[^']|'')*)'$`)
	compareRe   = regexp.MustCompile(`^(\w+) (ge|le) (-?[\d.]+)$`)
)

func (f *fakeFeed) matches(filter string, rec map[string]any) bool {
	if filter == "" {
		return true
	}
	for _, term := range strings.Split(filter, " and ") {
		if !f.matchAny(strings.TrimSuffix(strings.TrimPrefix(term, "("), ")"), rec) {
			return false
		}
	}
	return true
}

func (f *fakeFeed) matchAny(group string, rec map[string]any) bool {
	for _, term := range strings.Split(group, " or ") {
		if f.matchTerm(term, rec) {
			return true
		}
	}
	return false
}

func (f *fakeFeed) matchTerm(term string, rec map[string]any) bool {
	unquote := func(s string) string { return strings.ReplaceAll(s, "''", "'") }

	if m := eqStringRe.FindStringSubmatch(term); m != nil {
		v, ok := rec[m[1]].(string)
		return ok && v == unquote(m[2])
	}
	if m := eqLiteralRe.FindStringSubmatch(term); m != nil {
		v, ok := rec[m[1]]
		switch m[2] {
		case "null":
			return !ok || v == nil
		default:
			return ok && v == (m[2] == "true")
		}
	}
	if m := containsRe.FindStringSubmatch(term); m != nil {
		v, ok := rec[m[1]].(string)
		return ok && strings.Contains(v, unquote(m[2]))
	}
	if m := tolowerRe.FindStringSubmatch(term); m != nil {
		v, ok := rec[m[1]].(string)
		return ok && strings.ToLower(v) == unquote(m[2])
	}
	if m := compareRe.FindStringSubmatch(term); m != nil {
		v, ok := rec[m[1]].(float64)
		bound, _ := strconv.ParseFloat(m[3], 64)
		if m[2] == "ge" {
			return ok && v >= bound
		}
		return ok && v <= bound
	}

	f.t.Errorf("fake feed cannot evaluate filter term %q", term)
	return false
}

func withProperties(records ...map[string]any) func(*fakeFeed) {
	return func(f *fakeFeed) { f.properties = append(f.properties, records...) }
}

func withMedia(records ...map[string]any) func(*fakeFeed) {
	return func(f *fakeFeed) { f.media = append(f.media, records...) }
}

func withPropertyHandler(h http.HandlerFunc) func(*fakeFeed) {
	return func(f *fakeFeed) { f.propertyHandler = h }
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("writing response: %v", err)
	}
}

// listing returns an active sale listing record in zip.
func listing(key, zip string) map[string]any {
	return map[string]any{
		"ListingKey":        key,
		"ListingId":         "MLS-" + key,
		"StandardStatus":    "Active",
		"LeaseConsideredYN": false,
		"PostalCode":        zip,
	}
}

func mediaItem(key, owner string, order any) map[string]any {
	m := map[string]any{
		"MediaKey":          key,
		"ResourceRecordKey": owner,
		"MediaURL":          "https://cdn.example.com/" + url.PathEscape(key) + ".jpg",
	}
	if order != nil {
		m["Order"] = order
	}
	return m
}

func keysOf(props []PropertyWithMedia) []string {
	keys := make([]string, len(props))
	for i, p := range props {
		keys[i] = p.ListingKey
	}
	return keys
}
