// Package session turns the operator's signed-in browser cookies into a cookie jar and keeps
// them in the OS keyring between runs.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/net/publicsuffix"

	"github.com/aluiziolira/go-scrape-orders/config"
)

// ErrNoCookie is returned when no session cookie is configured anywhere.
var ErrNoCookie = errors.New("no session cookie: pass --cookie, set ORDERS_COOKIE or run 'session save'")

// ParseCookieHeader parses a Cookie header value as copied from the browser's developer tools.
// A leading "Cookie:" is tolerated.
func ParseCookieHeader(header string) ([]*http.Cookie, error) {
	header = strings.TrimSpace(header)
	if name, rest, ok := strings.Cut(header, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "cookie") {
		header = strings.TrimSpace(rest)
	}
	if header == "" {
		return nil, ErrNoCookie
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return nil, fmt.Errorf("parse cookie header: %w", err)
	}
	return cookies, nil
}

// NewJar returns a cookie jar holding the header's cookies for the catalog host.
func NewJar(baseURL, header string) (http.CookieJar, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	cookies, err := ParseCookieHeader(header)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	jar.SetCookies(u, cookies)
	return jar, nil
}

// Keyring stores the cookie header under one service/user entry.
type Keyring struct {
	Service string
	User    string
}

// NewKeyring binds to the entry named in cfg.
func NewKeyring(cfg config.SessionConfig) Keyring {
	return Keyring{Service: cfg.KeyringService, User: cfg.KeyringUser}
}

// Load returns the stored header, or "" when nothing is stored.
func (k Keyring) Load() (string, error) {
	secret, err := keyring.Get(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return secret, nil
}

// Save validates and stores the header.
func (k Keyring) Save(header string) error {
	if _, err := ParseCookieHeader(header); err != nil {
		return err
	}
	if err := keyring.Set(k.Service, k.User, strings.TrimSpace(header)); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

// Delete removes the stored header. A missing entry is not an error.
func (k Keyring) Delete() error {
	if err := keyring.Delete(k.Service, k.User); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete keyring entry: %w", err)
	}
	return nil
}

// Resolve picks the cookie header from configuration first, then from the keyring.
func Resolve(cfg config.SessionConfig, k Keyring) (string, error) {
	if strings.TrimSpace(cfg.Cookie) != "" {
		return cfg.Cookie, nil
	}
	stored, err := k.Load()
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", ErrNoCookie
	}
	return stored, nil
}
