package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchlink/perch/internal/bookmarks"
)

func TestCanonicalizeNormalizesEquivalentForms(t *testing.T) {
	t.Parallel()

	want := "https://example.com/Path"
	inputs := []string{
		"https://Example.com/Path/?utm_source=x",
		"https://www.example.com/Path",
		"https://example.com:443/Path",
		"https://example.com/Path#section",
		"https://example.com/Path/?utm_campaign=a&fbclid=b",
	}
	for _, in := range inputs {
		got, err := Canonicalize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://Example.com/Path/?utm_source=x",
		"http://www.example.org:80/a/b?z=1&a=2",
		"https://example.net",
		"example.com/page",
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		require.NoError(t, err)
		twice, err := Canonicalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, in)
	}
}

func TestCanonicalizeSortsQueryAndKeepsMeaningfulParams(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize("https://example.com/search?q=go&page=2&utm_medium=email")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search?page=2&q=go", got)
}

func TestCanonicalizeDefaultsScheme(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize("example.com/docs")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", got)
}

func TestCanonicalizeRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "ht tp://bad host/%zz"} {
		_, err := Canonicalize(in)
		assert.ErrorIs(t, err, bookmarks.ErrInvalidURL, in)
	}
}

func TestVariantsCrossProduct(t *testing.T) {
	t.Parallel()

	variants := Variants("https://example.org/a")
	assert.Contains(t, variants, "https://example.org/a")
	assert.Contains(t, variants, "https://www.example.org/a")
	assert.Contains(t, variants, "http://example.org/a")
	assert.Contains(t, variants, "http://www.example.org/a")
	assert.Len(t, variants, 4)
}

func TestVariantsDegradesToInput(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"mailto:someone@example.com"}, Variants("mailto:someone@example.com"))
	assert.Equal(t, []string{"%%%"}, Variants("%%%"))
}
