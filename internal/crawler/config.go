package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied when a Config field is left at its zero value.
const (
	DefaultMaxPages          = 10
	DefaultMinListings       = 4
	DefaultNavigationTimeout = 120 * time.Second
)

// Config captures the knobs of a single pagination crawl.
type Config struct {
	// MaxPages caps the pages processed by one attempt.
	MaxPages int
	// MinListings is the card count below which a page is treated as trailing.
	MinListings int
	// ExtractShortPage extracts the cards of a page below MinListings before
	// stopping instead of discarding them.
	ExtractShortPage  bool
	NavigationTimeout time.Duration
	Selectors         Selectors
}

// Selectors holds the CSS selectors for one target site's listing markup.
type Selectors struct {
	ListingCard       string `mapstructure:"listing_card"`
	AddressLine1      string `mapstructure:"address_line1"`
	AddressLine2      string `mapstructure:"address_line2"`
	AgentName         string `mapstructure:"agent_name"`
	AgencyName        string `mapstructure:"agency_name"`
	Price             string `mapstructure:"price"`
	FeaturesWrapper   string `mapstructure:"features_wrapper"`
	FeatureText       string `mapstructure:"feature_text"`
	ListingCardTag    string `mapstructure:"listing_card_tag"`
	LazyImage         string `mapstructure:"lazy_image"`
	PropertyType      string `mapstructure:"property_type"`
	AltImagePrefix    string `mapstructure:"alt_image_prefix"`
	ImageAltAttribute string `mapstructure:"image_alt_attribute"`
}

// DefaultSelectors matches the data-testid markup of domain.com.au search results.
func DefaultSelectors() Selectors {
	return Selectors{
		ListingCard:       `[data-testid^="listing-card-wrapper"]`,
		AddressLine1:      `[data-testid="address-line1"]`,
		AddressLine2:      `[data-testid="address-line2"]`,
		AgentName:         `[data-testid="listing-card-branding"] span:nth-child(1)`,
		AgencyName:        `[data-testid="listing-card-branding"] span:nth-child(2)`,
		Price:             `[data-testid="listing-card-price"]`,
		FeaturesWrapper:   `[data-testid="property-features-wrapper"]`,
		FeatureText:       `[data-testid="property-features-text-container"]`,
		ListingCardTag:    `[data-testid="listing-card-tag"]`,
		LazyImage:         `[data-testid="listing-card-lazy-image"] img`,
		PropertyType:      `[data-testid="listing-card-features-wrapper"] .css-11n8uyu span`,
		AltImagePrefix:    "Logo for ",
		ImageAltAttribute: "alt",
	}
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MinListings <= 0 {
		c.MinListings = DefaultMinListings
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if strings.TrimSpace(c.Selectors.ListingCard) == "" {
		c.Selectors = DefaultSelectors()
	}
	if c.Selectors.ImageAltAttribute == "" {
		c.Selectors.ImageAltAttribute = "alt"
	}
	return c
}

// Validate checks the selectors the crawl cannot run without.
func (s Selectors) Validate() error {
	if strings.TrimSpace(s.ListingCard) == "" {
		return fmt.Errorf("selectors.listing_card must be set")
	}
	if strings.TrimSpace(s.AddressLine1) == "" {
		return fmt.Errorf("selectors.address_line1 must be set")
	}
	return nil
}
