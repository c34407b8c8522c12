// Package kaldav is a CalDAV client library built around RFC 4791
// calendar-query filters.
//
// The filter tree lives in package filter, its textual DSL in filter/dsl and
// the CalDAV client and server in package caldav. This package holds the
// plain WebDAV pieces they share: HTTP clients with credentials, principal
// discovery and conditional requests.
package kaldav

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// HTTPClient performs HTTP requests. It's implemented by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type basicAuthHTTPClient struct {
	c                  HTTPClient
	username, password string
}

func (c *basicAuthHTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.password)
	return c.c.Do(req)
}

// HTTPClientWithBasicAuth returns an HTTP client that adds basic
// authentication to all outgoing requests. If c is nil, http.DefaultClient is
// used.
func HTTPClientWithBasicAuth(c HTTPClient, username, password string) HTTPClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &basicAuthHTTPClient{c, username, password}
}

// HTTPClientWithToken returns an HTTP client sending token as a bearer
// access token. If c is not nil, it's used as the underlying transport.
func HTTPClientWithToken(ctx context.Context, c *http.Client, token string) HTTPClient {
	if c != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})
	return oauth2.NewClient(ctx, src)
}

// ConditionalMatch represents the value of a conditional header
// according to RFC 2068 section 14.25 and RFC 2068 section 14.26
// The (optional) value can either be a wildcard or a list of ETags.
type ConditionalMatch string

// IsSet reports whether the header was sent.
func (val ConditionalMatch) IsSet() bool {
	return val != ""
}

// IsWildcard reports whether the header is "*".
func (val ConditionalMatch) IsWildcard() bool {
	return val == "*"
}

// ETags returns the unquoted entity tags of the header.
func (val ConditionalMatch) ETags() ([]string, error) {
	var etags []string
	for _, s := range strings.Split(string(val), ",") {
		s = strings.TrimPrefix(strings.TrimSpace(s), "W/")
		etag, err := strconv.Unquote(s)
		if err != nil {
			return nil, fmt.Errorf("webdav: invalid entity tag %q in conditional header", s)
		}
		etags = append(etags, etag)
	}
	return etags, nil
}

// MatchETag checks etag against the header. isSet is false when the header
// is absent, in which case ok is meaningless.
func (val ConditionalMatch) MatchETag(etag string) (isSet, ok bool, err error) {
	if !val.IsSet() {
		return false, false, nil
	}
	if val.IsWildcard() {
		return true, true, nil
	}

	etags, err := val.ETags()
	if err != nil {
		return true, false, err
	}
	for _, t := range etags {
		if t == etag {
			return true, true, nil
		}
	}
	return true, false, nil
}
