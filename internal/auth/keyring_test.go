package auth

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/stockpile-dev/stockpile/internal/client"
)

func TestKeyring_RoundTrip(t *testing.T) {
	keyring.MockInit()
	store := Keyring{}

	cookies, err := store.LoadCookies("http://api.test")
	require.NoError(t, err)
	assert.Nil(t, cookies)

	require.NoError(t, store.SaveCookies("http://api.test", []*http.Cookie{
		{Name: "refresh_token", Value: "r1", Path: "/", HttpOnly: true},
	}))

	cookies, err = store.LoadCookies("http://api.test")
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "r1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// other base URLs are separate entries
	cookies, err = store.LoadCookies("http://other.test")
	require.NoError(t, err)
	assert.Nil(t, cookies)

	require.NoError(t, store.SaveCookies("http://api.test", nil))
	cookies, err = store.LoadCookies("http://api.test")
	require.NoError(t, err)
	assert.Nil(t, cookies)

	// deleting twice is fine
	require.NoError(t, store.SaveCookies("http://api.test", nil))
}

func TestKeyring_CorruptEntry(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(service, getKeyringKey("http://api.test"), "{not json"))

	_, err := Keyring{}.LoadCookies("http://api.test")
	assert.Error(t, err)
}

func TestKeyring_SessionSurvivesProcesses(t *testing.T) {
	keyring.MockInit()
	_, server := newFakeAPI(t)

	newAPI := func() *client.API {
		api, err := client.New(client.Options{
			BaseURL:         server.URL,
			WithCredentials: true,
			Cookies:         Keyring{},
			Logger:          zerolog.Nop(),
		})
		require.NoError(t, err)
		return api
	}

	first, err := New(newAPI(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(first.Close)
	first.Bootstrap(t.Context())
	require.NoError(t, first.Login(t.Context(), "a@b.com", "x"))

	second, err := New(newAPI(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(second.Close)
	assert.True(t, second.Bootstrap(t.Context()))

	require.NoError(t, second.Logout(t.Context()))

	third, err := New(newAPI(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(third.Close)
	assert.False(t, third.Bootstrap(t.Context()))
}
