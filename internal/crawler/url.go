package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageParam is the query parameter carrying the page number.
const PageParam = "page"

// PageURL appends page=N to base. Any existing page parameter is dropped;
// every other parameter is kept byte for byte and in order.
func PageURL(base string, page int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	rest, _, _ := splitPageParam(u.RawQuery)
	u.RawQuery = strings.Join(append(rest, PageParam+"="+strconv.Itoa(page)), "&")
	return u.String(), nil
}

// SplitPageURL removes the page parameter from raw and returns the base URL and
// the page it carried. A missing or invalid page parameter yields page 1.
func SplitPageURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("parse url: %w", err)
	}
	rest, value, found := splitPageParam(u.RawQuery)
	if !found {
		return raw, 1, nil
	}
	page := 1
	if n, convErr := strconv.Atoi(value); convErr == nil && n > 0 {
		page = n
	}
	u.RawQuery = strings.Join(rest, "&")
	return u.String(), page, nil
}

// splitPageParam separates the page parameter from the other raw query
// parts. The last page value wins.
func splitPageParam(rawQuery string) (rest []string, value string, found bool) {
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, val, _ := strings.Cut(part, "=")
		if key == PageParam {
			value, found = val, true
			continue
		}
		rest = append(rest, part)
	}
	return rest, value, found
}
