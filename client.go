package kaldav

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kaldav/go-kaldav/internal"
)

// Discover performs a DNS-based CalDAV service discovery as described in
// RFC 6764 section 6. It returns the URL of the CalDAV server.
func Discover(ctx context.Context, host string) (string, error) {
	return internal.Discover(ctx, nil, nil, host)
}

// Client provides access to a remote WebDAV server.
type Client struct {
	ic *internal.Client
}

// NewClient creates a client for the server at endpoint. If c is nil,
// http.DefaultClient is used.
func NewClient(c HTTPClient, endpoint string) (*Client, error) {
	ic, err := internal.NewClient(c, endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{ic}, nil
}

// SetLogger sets the logger requests are traced to at debug level.
func (c *Client) SetLogger(logger logrus.FieldLogger) {
	c.ic.SetLogger(logger)
}

// FindCurrentUserPrincipal returns the path of the authenticated user's
// principal resource.
func (c *Client) FindCurrentUserPrincipal(ctx context.Context) (string, error) {
	propfind := internal.NewPropNamePropfind(internal.CurrentUserPrincipalName)

	resp, err := c.ic.PropfindFlat(ctx, "", propfind)
	if err != nil {
		return "", err
	}

	var prop internal.CurrentUserPrincipal
	if err := resp.DecodeProp(&prop); err != nil {
		return "", err
	}
	if prop.Unauthenticated != nil {
		return "", fmt.Errorf("webdav: unauthenticated")
	}

	return prop.Href.Path, nil
}

// Capabilities returns the DAV compliance classes advertised for path and
// the methods it allows.
func (c *Client) Capabilities(ctx context.Context, path string) (classes, methods map[string]bool, err error) {
	return c.ic.Options(ctx, path)
}

// RemoveAll deletes the resource at path, including its members.
func (c *Client) RemoveAll(ctx context.Context, path string) error {
	req, err := c.ic.NewRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.ic.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
