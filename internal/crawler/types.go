package crawler

import (
	"net/http"
	"strconv"
	"time"
)

// ListingRecord is one scraped property listing card.
type ListingRecord struct {
	AgentName      string  `json:"agent_name"`
	AgencyName     string  `json:"agency_name"`
	Price          string  `json:"price"`
	AddressLine1   string  `json:"address_line1"`
	Suburb         *string `json:"suburb"`
	State          *string `json:"state"`
	Postcode       *string `json:"postcode"`
	Bedrooms       int     `json:"bedrooms"`
	Bathrooms      int     `json:"bathrooms"`
	CarSpaces      int     `json:"car_spaces"`
	Sqm            string  `json:"sqm"`
	ListingCardTag *string `json:"listing_card_tag"`
	AltImage       *string `json:"alt_image"`
	PropertyType   *string `json:"property_type"`
}

// ListingColumns is the tabular header written for ListingRecord rows, in
// declaration order.
var ListingColumns = []string{
	"agent_name",
	"agency_name",
	"price",
	"address_line1",
	"suburb",
	"state",
	"postcode",
	"bedrooms",
	"bathrooms",
	"car_spaces",
	"sqm",
	"listing_card_tag",
	"alt_image",
	"property_type",
}

// Row renders the record in ListingColumns order. Absent optional fields
// become empty cells.
func (r ListingRecord) Row() []string {
	return []string{
		r.AgentName,
		r.AgencyName,
		r.Price,
		r.AddressLine1,
		deref(r.Suburb),
		deref(r.State),
		deref(r.Postcode),
		strconv.Itoa(r.Bedrooms),
		strconv.Itoa(r.Bathrooms),
		strconv.Itoa(r.CarSpaces),
		r.Sqm,
		deref(r.ListingCardTag),
		deref(r.AltImage),
		deref(r.PropertyType),
	}
}

// StopReason explains why a crawl attempt ended.
type StopReason string

// Stop reasons reported in AttemptResult.
const (
	StopPageCap         StopReason = "page_cap"
	StopNoListings      StopReason = "no_listings"
	StopShortPage       StopReason = "short_page"
	StopNavigationError StopReason = "navigation_error"
	StopError           StopReason = "error"
	StopCanceled        StopReason = "canceled"
)

// AttemptResult is produced by one Crawler run for one start URL.
type AttemptResult struct {
	BaseURL   string
	StartPage int
	// LastPage is the highest page reported as being scraped. It is
	// StartPage-1 when no page was reached.
	LastPage       int
	PagesProcessed int
	Records        []ListingRecord
	Stop           StopReason
	OutputPath     string
	Duration       time.Duration
}

// Succeeded reports whether the attempt ended on a normal stop condition.
func (r AttemptResult) Succeeded() bool {
	switch r.Stop {
	case StopPageCap, StopNoListings, StopShortPage:
		return true
	default:
		return false
	}
}

// Cookie is a session cookie carried between page navigations.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
}

// ToHTTP converts the cookie for net/http based providers.
func (c Cookie) ToHTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
}

// CookieFromHTTP converts a net/http cookie.
func CookieFromHTTP(c *http.Cookie) Cookie {
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
