package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadInputFile reads start URLs from the CSV file at path.
func ReadInputFile(path string) ([]string, error) {
	// #nosec G304 -- input path is operator supplied.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	urls, err := ReadInput(f)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	return urls, nil
}

// ReadInput returns the values of the url column in file order. Blank values
// and repeated URLs are dropped.
func ReadInput(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), "url") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errors.New(`missing "url" column`)
	}

	seen := make(map[string]struct{})
	var urls []string
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if col >= len(record) {
			continue
		}
		u := strings.TrimSpace(record[col])
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls, nil
}
