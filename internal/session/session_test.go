package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortontech/showfor/internal/showfor"
	"github.com/shortontech/showfor/internal/store"
)

const catalogJSON = `{
  "products": [{"slug": "firefox"}, {"slug": "mobile"}],
  "platforms": {"firefox": [{"slug": "win8"}, {"slug": "mac"}], "mobile": [{"slug": "android"}]},
  "versions": {
    "firefox": [{"slug": "fx25", "min_version": 25, "max_version": 26}, {"slug": "fx24", "min_version": 24, "max_version": 25}],
    "mobile": [{"slug": "m24", "min_version": 24, "max_version": 25}]
  }
}`

func testCatalog(t *testing.T) *showfor.Catalog {
	t.Helper()
	c, err := showfor.ParseCatalogJSON([]byte(catalogJSON))
	require.NoError(t, err)
	return c
}

func TestStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), Config{TTL: time.Hour}, nil)
	id := NewID()

	_, err := s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	form := showfor.Form{"firefox": {Enabled: true, Options: []string{"platform:win8", "version:fx24"}}}
	require.NoError(t, s.Save(ctx, id, form))

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, form, got)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackendExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPersist(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), Config{TTL: time.Hour}, nil)
	id := NewID()

	st := store.NewForm(showfor.Form{})
	stop := s.Persist(ctx, id, st)

	st.Dispatch(store.ToggleProduct{Product: "firefox", Enabled: true})
	st.Dispatch(store.SelectOption{Product: "firefox", Value: "platform:mac"})

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, showfor.Form{"firefox": {Enabled: true, Options: []string{"platform:mac"}}}, got)

	stop()
	st.Dispatch(store.ToggleProduct{Product: "firefox", Enabled: false})
	got, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, got["firefox"].Enabled)
}

func TestCookie(t *testing.T) {
	s := NewStore(NewMemoryBackend(), Config{TTL: time.Hour, CookieName: "sf"}, nil)
	id := NewID()

	rec := httptest.NewRecorder()
	http.SetCookie(rec, s.Cookie(id))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	got, ok := s.ID(req)
	require.True(t, ok)
	assert.Equal(t, id, got)

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.AddCookie(&http.Cookie{Name: "sf", Value: "../../etc"})
	_, ok = s.ID(bad)
	assert.False(t, ok)
}

func TestFragmentRoundTrip(t *testing.T) {
	c := testCatalog(t)
	form := showfor.Form{
		"firefox": {Enabled: true, Options: []string{"platform:win8", "version:fx24"}},
		"mobile":  {Enabled: false},
	}

	frag := EncodeFragment(form)
	assert.Equal(t, "firefox=on,win8,fx24;mobile=off", frag)

	got, err := DecodeFragment(c, "#"+frag)
	require.NoError(t, err)
	assert.Equal(t, form, got)
}

func TestDecodeFragment(t *testing.T) {
	c := testCatalog(t)

	got, err := DecodeFragment(c, "seamonkey=on;firefox=on,fx99,mac")
	require.NoError(t, err)
	assert.Equal(t, showfor.Form{"firefox": {Enabled: true, Options: []string{"platform:mac"}}}, got)

	got, err = DecodeFragment(c, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"firefox", "=on", "firefox=maybe"} {
		_, err := DecodeFragment(c, bad)
		assert.ErrorIs(t, err, ErrInvalidFragment, bad)
	}
}
