package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInput(t *testing.T) {
	t.Parallel()

	input := "suburb,URL\n" +
		"carlton,https://example.test/search?suburb=carlton\n" +
		"empty,  \n" +
		"fitzroy,https://example.test/search?suburb=fitzroy\n" +
		"dup,https://example.test/search?suburb=carlton\n" +
		"short\n"
	urls, err := ReadInput(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.test/search?suburb=carlton",
		"https://example.test/search?suburb=fitzroy",
	}, urls)
}

func TestReadInputErrors(t *testing.T) {
	t.Parallel()

	_, err := ReadInput(strings.NewReader(""))
	require.ErrorContains(t, err, "empty")

	_, err = ReadInput(strings.NewReader("link\nhttps://example.test\n"))
	require.ErrorContains(t, err, `missing "url" column`)
}

func TestReadInputFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "urls.csv")
	require.NoError(t, os.WriteFile(path, []byte("url\nhttps://example.test/search\n"), 0o600))
	urls, err := ReadInputFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.test/search"}, urls)

	_, err = ReadInputFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
