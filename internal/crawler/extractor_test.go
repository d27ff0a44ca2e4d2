package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFullCard(t *testing.T) {
	t.Parallel()

	card := listingCard("12 Drummond Street",
		withLocality("North Carlton VIC 3054"),
		withFeatures("3 Beds", "2 Baths", "1 Parking", "450m²"),
		withAlt("Logo for Nelson Alexander"),
		withTag("New"),
	)
	rec, ok, err := NewExtractor(DefaultSelectors()).Extract(context.Background(), card)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "12 Drummond Street", rec.AddressLine1)
	assert.Equal(t, "Jane Agent", rec.AgentName)
	assert.Equal(t, "Harcourts Carlton", rec.AgencyName)
	assert.Equal(t, "$1,250,000", rec.Price)
	require.NotNil(t, rec.Suburb)
	assert.Equal(t, "North Carlton", *rec.Suburb)
	assert.Equal(t, "VIC", *rec.State)
	assert.Equal(t, "3054", *rec.Postcode)
	assert.Equal(t, 3, rec.Bedrooms)
	assert.Equal(t, 2, rec.Bathrooms)
	assert.Equal(t, 1, rec.CarSpaces)
	assert.Equal(t, "450m²", rec.Sqm)
	require.NotNil(t, rec.AltImage)
	assert.Equal(t, "Nelson Alexander", *rec.AltImage)
	require.NotNil(t, rec.ListingCardTag)
	assert.Equal(t, "New", *rec.ListingCardTag)
	assert.Nil(t, rec.PropertyType)
}

func TestExtractMissingLocality(t *testing.T) {
	t.Parallel()

	rec, ok, err := NewExtractor(DefaultSelectors()).Extract(context.Background(), listingCard("5 Rathdowne Street"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, rec.Suburb)
	assert.Nil(t, rec.State)
	assert.Nil(t, rec.Postcode)
	assert.Equal(t, "0", rec.Sqm)
	assert.Zero(t, rec.Bedrooms)
}

func TestExtractNonNumericFeatures(t *testing.T) {
	t.Parallel()

	card := listingCard("1 Faraday Street", withFeatures("Studio", "− Baths", ""))
	rec, ok, err := NewExtractor(DefaultSelectors()).Extract(context.Background(), card)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, rec.Bedrooms)
	assert.Zero(t, rec.Bathrooms)
	assert.Zero(t, rec.CarSpaces)
	assert.Equal(t, "0", rec.Sqm)
}

func TestExtractSkipsCardWithoutAddress(t *testing.T) {
	t.Parallel()

	ex := NewExtractor(DefaultSelectors())
	_, ok, err := ex.Extract(context.Background(), listingCard("", withoutAddress()))
	require.NoError(t, err)
	assert.False(t, ok)

	unreadable := listingCard("x")
	unreadable.children[DefaultSelectors().AddressLine1] = []Element{&fakeNode{textErr: errors.New("detached node")}}
	_, ok, err = ex.Extract(context.Background(), unreadable)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractPageKeepsValidCards(t *testing.T) {
	t.Parallel()

	page := []Element{
		listingCard("1 Elgin Street"),
		listingCard("", withoutAddress()),
		listingCard("3 Elgin Street"),
		listingCard("4 Elgin Street"),
	}
	ex := NewExtractor(DefaultSelectors())
	var got []string
	for _, card := range page {
		rec, ok, err := ex.Extract(context.Background(), card)
		require.NoError(t, err)
		if ok {
			got = append(got, rec.AddressLine1)
		}
	}
	assert.Equal(t, []string{"1 Elgin Street", "3 Elgin Street", "4 Elgin Street"}, got)
}

func TestExtractSurfacesCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := NewExtractor(DefaultSelectors()).Extract(ctx, listingCard("9 Cardigan Street"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseLeadingInt(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"3 Beds":  3,
		"12":      12,
		" 4  Bed": 4,
		"":        0,
		"Studio":  0,
		"2.5 Ba":  0,
		"-1 Bed":  -1,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLeadingInt(in), "input %q", in)
	}
}

func TestSplitLocality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line                    string
		suburb, state, postcode string
		absent                  bool
	}{
		{line: "Carlton VIC 3053", suburb: "Carlton", state: "VIC", postcode: "3053"},
		{line: "Carlton  North   VIC 3054", suburb: "Carlton North", state: "VIC", postcode: "3054"},
		{line: "VIC 3053", suburb: "", state: "VIC", postcode: "3053"},
		{line: "3053", suburb: "", state: "", postcode: "3053"},
		{line: "   ", absent: true},
	}
	for _, tt := range tests {
		suburb, state, postcode := splitLocality(tt.line)
		if tt.absent {
			assert.Nil(t, suburb)
			assert.Nil(t, state)
			assert.Nil(t, postcode)
			continue
		}
		require.NotNil(t, suburb, tt.line)
		assert.Equal(t, tt.suburb, *suburb, tt.line)
		assert.Equal(t, tt.state, *state, tt.line)
		assert.Equal(t, tt.postcode, *postcode, tt.line)
	}
}
