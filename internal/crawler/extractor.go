package crawler

import (
	"context"
	"strconv"
	"strings"
)

// Extractor turns listing card elements into ListingRecords.
type Extractor struct {
	sel Selectors
}

// NewExtractor builds an Extractor for the given selectors.
func NewExtractor(sel Selectors) *Extractor {
	return &Extractor{sel: sel}
}

// Extract reads one listing card. ok is false when the card has no primary
// address line, in which case the card is skipped. Optional lookups that fail
// leave their field at its default; only a finished context is returned as an
// error.
func (e *Extractor) Extract(ctx context.Context, card Element) (ListingRecord, bool, error) {
	addr, ok := e.text(ctx, card, e.sel.AddressLine1)
	if !ok {
		return ListingRecord{}, false, ctx.Err()
	}

	rec := ListingRecord{
		AddressLine1: strings.TrimSpace(addr),
		Sqm:          "0",
	}
	rec.AgentName, _ = e.text(ctx, card, e.sel.AgentName)
	rec.AgencyName, _ = e.text(ctx, card, e.sel.AgencyName)
	if price, found := e.text(ctx, card, e.sel.Price); found {
		rec.Price = strings.TrimSpace(price)
	}

	if line2, found := e.text(ctx, card, e.sel.AddressLine2); found {
		rec.Suburb, rec.State, rec.Postcode = splitLocality(strings.TrimSpace(line2))
	}

	features := e.features(ctx, card)
	if len(features) > 0 {
		rec.Bedrooms = ParseLeadingInt(features[0])
	}
	if len(features) > 1 {
		rec.Bathrooms = ParseLeadingInt(features[1])
	}
	if len(features) > 2 {
		rec.CarSpaces = ParseLeadingInt(features[2])
	}
	if len(features) > 3 {
		rec.Sqm = features[3]
	}

	if tag, found := e.text(ctx, card, e.sel.ListingCardTag); found {
		rec.ListingCardTag = ptr(strings.TrimSpace(tag))
	}
	rec.AltImage = e.altImage(ctx, card)
	if pt, found := e.text(ctx, card, e.sel.PropertyType); found {
		rec.PropertyType = ptr(strings.TrimSpace(pt))
	}

	if err := ctx.Err(); err != nil {
		return ListingRecord{}, false, err
	}
	return rec, true, nil
}

// ParseLeadingInt parses the first whitespace-separated token of s as an
// integer, returning 0 when that is not possible.
func ParseLeadingInt(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

// splitLocality splits "Suburb Name STATE 1234" into its parts. An empty line
// yields no locality at all.
func splitLocality(line string) (*string, *string, *string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, nil, nil
	}
	var suburb, state, postcode string
	switch len(parts) {
	case 1:
		postcode = parts[0]
	default:
		suburb = strings.Join(parts[:len(parts)-2], " ")
		state = parts[len(parts)-2]
		postcode = parts[len(parts)-1]
	}
	return &suburb, &state, &postcode
}

func (e *Extractor) features(ctx context.Context, card Element) []string {
	if e.sel.FeaturesWrapper == "" || e.sel.FeatureText == "" {
		return nil
	}
	wrapper, ok := first(ctx, card, e.sel.FeaturesWrapper)
	if !ok {
		return nil
	}
	slots, err := wrapper.QueryAll(ctx, e.sel.FeatureText)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		txt, err := slot.Text(ctx)
		if err != nil {
			txt = ""
		}
		out = append(out, txt)
	}
	return out
}

func (e *Extractor) altImage(ctx context.Context, card Element) *string {
	img, ok := first(ctx, card, e.sel.LazyImage)
	if !ok {
		return nil
	}
	alt, present, err := img.Attr(ctx, e.sel.ImageAltAttribute)
	if err != nil || !present {
		return nil
	}
	if e.sel.AltImagePrefix != "" && strings.Contains(alt, strings.TrimSpace(e.sel.AltImagePrefix)) {
		alt = strings.TrimSpace(strings.ReplaceAll(alt, e.sel.AltImagePrefix, ""))
	}
	return &alt
}

// text returns the text of the first element matching selector under card.
func (e *Extractor) text(ctx context.Context, card Element, selector string) (string, bool) {
	el, ok := first(ctx, card, selector)
	if !ok {
		return "", false
	}
	txt, err := el.Text(ctx)
	if err != nil {
		return "", false
	}
	return txt, true
}

func first(ctx context.Context, parent Element, selector string) (Element, bool) {
	if selector == "" {
		return nil, false
	}
	matches, err := parent.QueryAll(ctx, selector)
	if err != nil || len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

func ptr(s string) *string {
	return &s
}
