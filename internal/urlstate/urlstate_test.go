package urlstate

import (
	"net/url"
	"testing"
	"time"

	"github.com/cyclemap/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestHydrate(t *testing.T) {
	state := Hydrate(url.Values{"search": {"bici"}, "country": {"ES"}, "page": {"4"}})
	assert.Equal(t, listing.FilterState{Search: "bici", Country: "ES", Page: 1}, state)

	empty := Hydrate(url.Values{})
	assert.Equal(t, listing.FilterState{Page: 1}, empty)
}

func TestApply_RoundTrip(t *testing.T) {
	query, changed := Apply(url.Values{}, listing.FilterState{Search: "abc", Country: "US", Page: 3})
	require.True(t, changed)
	assert.Equal(t, "abc", query.Get("search"))
	assert.Equal(t, "US", query.Get("country"))
	assert.False(t, query.Has("page"))

	expected, err := url.ParseQuery("search=abc&country=US")
	require.NoError(t, err)
	assert.Equal(t, expected, query)

	cleared, changed := Apply(query, listing.FilterState{Page: 1})
	require.True(t, changed)
	assert.False(t, cleared.Has("search"))
	assert.False(t, cleared.Has("country"))
	assert.Equal(t, "", cleared.Encode())
}

func TestApply_KeepsUnrelatedParamsAndDropsPage(t *testing.T) {
	original := url.Values{"lang": {"es"}, "page": {"2"}, "search": {"abc"}}

	query, changed := Apply(original, listing.FilterState{Search: "abc"})
	assert.True(t, changed)
	assert.Equal(t, "lang=es&search=abc", query.Encode())

	// исходные значения не меняются
	assert.Equal(t, "2", original.Get("page"))
}

func TestApply_Unchanged(t *testing.T) {
	_, changed := Apply(url.Values{"search": {"abc"}}, listing.FilterState{Search: "abc", Page: 5})
	assert.False(t, changed)
}

func TestSynchronizer_Immediate(t *testing.T) {
	nav := NewMemoryNavigator(mustParse(t, "/?search=old&page=3"))
	sync := NewSynchronizer(nav, 0, zap.NewNop())

	state := sync.Mount()
	assert.Equal(t, "old", state.Search)

	sync.Observe(listing.FilterState{Search: "abc", Country: "US", Page: 1})
	assert.Equal(t, "country=US&search=abc", nav.Current().RawQuery)
	assert.Equal(t, "/", nav.Current().Path)
	assert.Equal(t, 1, nav.Replaces())

	// то же состояние не вызывает навигацию
	sync.Observe(listing.FilterState{Search: "abc", Country: "US", Page: 2})
	assert.Equal(t, 1, nav.Replaces())

	sync.Observe(listing.FilterState{Page: 1})
	assert.Equal(t, "", nav.Current().RawQuery)
	assert.Equal(t, 2, nav.Replaces())
}

func TestSynchronizer_DebounceKeepsLatest(t *testing.T) {
	nav := NewMemoryNavigator(mustParse(t, "/"))
	sync := NewSynchronizer(nav, 20*time.Millisecond, zap.NewNop())

	sync.Observe(listing.FilterState{Search: "a"})
	sync.Observe(listing.FilterState{Search: "ab"})
	sync.Observe(listing.FilterState{Search: "abc"})
	assert.Equal(t, 0, nav.Replaces())
	assert.True(t, sync.Pending())

	require.Eventually(t, func() bool { return nav.Replaces() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "search=abc", nav.Current().RawQuery)
	assert.False(t, sync.Pending())
}

func TestSynchronizer_FlushAndStop(t *testing.T) {
	nav := NewMemoryNavigator(mustParse(t, "/"))
	sync := NewSynchronizer(nav, time.Hour, zap.NewNop())

	sync.Observe(listing.FilterState{Country: "FR"})
	sync.Flush()
	assert.Equal(t, "country=FR", nav.Current().RawQuery)

	sync.Observe(listing.FilterState{Country: "DE"})
	sync.Stop()
	sync.Flush()
	sync.Observe(listing.FilterState{Country: "IT"})

	assert.Equal(t, "country=FR", nav.Current().RawQuery)
	assert.Equal(t, 1, nav.Replaces())
}
