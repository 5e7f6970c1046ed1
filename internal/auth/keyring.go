package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zalando/go-keyring"
)

const (
	service = "stockpile-cli"
)

// getKeyringKey returns a unique key for storing cookies per API base URL
func getKeyringKey(baseURL string) string {
	return fmt.Sprintf("cookies-%s", baseURL)
}

// Keyring persists the API's cookies, the refresh credential among them, in
// the OS keychain/credential manager. It implements client.CookieStore.
type Keyring struct{}

// SaveCookies replaces the cookies stored for baseURL. An empty list
// removes the entry.
func (Keyring) SaveCookies(baseURL string, cookies []*http.Cookie) error {
	key := getKeyringKey(baseURL)

	if len(cookies) == 0 {
		if err := keyring.Delete(service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete cookies: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := keyring.Set(service, key, string(data)); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	return nil
}

// LoadCookies returns the cookies stored for baseURL; none is not an error
func (Keyring) LoadCookies(baseURL string) ([]*http.Cookie, error) {
	data, err := keyring.Get(service, getKeyringKey(baseURL))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load cookies: %w", err)
	}

	var cookies []*http.Cookie
	if err := json.Unmarshal([]byte(data), &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse stored cookies: %w", err)
	}
	return cookies, nil
}
