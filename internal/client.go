package internal

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
)

// maxErrorBody bounds how much of a failed response body is kept in an
// HTTPError.
const maxErrorBody = 1024

// Discover performs a DNS-based CalDAV service discovery as described in
// RFC 6764 section 6. It returns the URL of the CalDAV server.
func Discover(ctx context.Context, resolver *net.Resolver, httpClient HTTPClient, host string) (string, error) {
	const service = "caldav"

	if resolver == nil {
		resolver = net.DefaultResolver
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	path := ""

	// Only look up the secure variant, plaintext connections are insecure
	_, addrs, err := resolver.LookupSRV(ctx, service+"s", "tcp", host)
	if dnsErr, ok := err.(*net.DNSError); ok {
		if dnsErr.IsTemporary {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	if len(addrs) > 0 {
		srvTarget := strings.TrimSuffix(addrs[0].Target, ".")

		if srvTarget != "" {
			txtRecs, err := resolver.LookupTXT(ctx, fmt.Sprintf("_%vs._tcp.%v", service, host))
			if dnsErr, ok := err.(*net.DNSError); ok {
				if dnsErr.IsTemporary {
					return "", err
				}
			} else if err != nil {
				return "", err
			}

			path = txtPath(txtRecs)

			if addrs[0].Port == 443 {
				host = srvTarget
			} else {
				host = fmt.Sprintf("%v:%v", srvTarget, addrs[0].Port)
			}
		}
	}

	if path == "" {
		path = "/.well-known/" + service
	}

	u := url.URL{Scheme: "https", Host: host, Path: path}
	serviceURL := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, serviceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	// Servers might require authentication to perform an OPTIONS request
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusUnauthorized {
		return "", &HTTPError{Method: http.MethodOptions, URL: serviceURL, Code: resp.StatusCode}
	}

	return serviceURL, nil
}

// txtPath extracts the "path" key of RFC 6763 TXT records.
func txtPath(records []string) string {
	for _, rec := range records {
		// LookupTXT merges all constituent strings together
		for _, kv := range strings.Split(rec, " ") {
			if strings.HasPrefix(strings.ToLower(kv), "path=") {
				return kv[5:]
			}
		}
	}

	return ""
}

// HTTPClient performs HTTP requests. It's implemented by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends WebDAV requests relative to an endpoint.
type Client struct {
	http     HTTPClient
	endpoint *url.URL
	logger   logrus.FieldLogger
}

func NewClient(c HTTPClient, endpoint string) (*Client, error) {
	if c == nil {
		c = http.DefaultClient
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if u.Path == "" {
		// This is important to avoid issues with path.Join
		u.Path = "/"
	}
	return &Client{http: c, endpoint: u, logger: logrus.StandardLogger()}, nil
}

// SetLogger replaces the logger requests are traced to at debug level.
func (c *Client) SetLogger(logger logrus.FieldLogger) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c.logger = logger
}

func (c *Client) ResolveHref(p string) *url.URL {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(c.endpoint.Path, p)
	}
	return &url.URL{
		Scheme: c.endpoint.Scheme,
		User:   c.endpoint.User,
		Host:   c.endpoint.Host,
		Path:   p,
	}
}

func (c *Client) NewRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.ResolveHref(path).String(), body)
}

// NewXMLRequest creates a request whose body is v encoded with encoding/xml.
func (c *Client) NewXMLRequest(ctx context.Context, method string, path string, v interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	return c.newXMLRequest(ctx, method, path, &buf)
}

// NewRawXMLRequest creates a request with an already serialized XML body.
func (c *Client) NewRawXMLRequest(ctx context.Context, method string, path string, body string) (*http.Request, error) {
	return c.newXMLRequest(ctx, method, path, strings.NewReader(body))
}

func (c *Client) newXMLRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Add("Content-Type", "text/xml; charset=\"utf-8\"")

	return req, nil
}

// Do sends the request. Non-2xx responses are turned into an *HTTPError and
// their body is closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	log := c.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.Redacted(),
	})

	start := time.Now()
	log.Debug("Sending request")

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Debug("Request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Received response")

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, newHTTPError(req, resp)
	}
	return resp, nil
}

func newHTTPError(req *http.Request, resp *http.Response) *HTTPError {
	httpErr := &HTTPError{
		Method: req.Method,
		URL:    req.URL.Redacted(),
		Code:   resp.StatusCode,
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	lr := io.LimitedReader{R: resp.Body, N: maxErrorBody}
	var buf bytes.Buffer
	io.Copy(&buf, &lr)

	body := strings.TrimSpace(buf.String())
	if body != "" && lr.N == 0 {
		body += " […]"
	}
	httpErr.Body = body

	t, _, _ := mime.ParseMediaType(contentType)
	if t == "application/xml" || t == "text/xml" {
		var davErr Error
		if err := xml.Unmarshal(buf.Bytes(), &davErr); err == nil {
			httpErr.Err = &davErr
		}
	}

	return httpErr
}

func (c *Client) DoMultiStatus(req *http.Request) (*Multistatus, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("webdav: %v %v: expected multi-status response, got %v", req.Method, req.URL.Redacted(), resp.Status)
	}

	// TODO: the response can be quite large, support streaming Response elements
	var ms Multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("webdav: failed to decode multi-status response: %w", err)
	}

	return &ms, nil
}

func (c *Client) Propfind(ctx context.Context, path string, depth Depth, propfind *Propfind) (*Multistatus, error) {
	req, err := c.NewXMLRequest(ctx, "PROPFIND", path, propfind)
	if err != nil {
		return nil, err
	}

	req.Header.Add("Depth", depth.String())

	return c.DoMultiStatus(req)
}

// PropfindFlat performs a PROPFIND request with a zero depth.
func (c *Client) PropfindFlat(ctx context.Context, path string, propfind *Propfind) (*Response, error) {
	ms, err := c.Propfind(ctx, path, DepthZero, propfind)
	if err != nil {
		return nil, err
	}

	return ms.Get(c.ResolveHref(path).Path)
}

// Report sends a REPORT request with a pre-rendered body and returns the raw
// response text.
func (c *Client) Report(ctx context.Context, path string, depth Depth, body string) (string, error) {
	req, err := c.NewRawXMLRequest(ctx, "REPORT", path, body)
	if err != nil {
		return "", err
	}

	req.Header.Add("Depth", depth.String())

	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("webdav: failed to read REPORT response: %w", err)
	}

	return string(b), nil
}

func parseCommaSeparatedSet(values []string, upper bool) map[string]bool {
	m := make(map[string]bool)
	for _, v := range values {
		fields := strings.FieldsFunc(v, func(r rune) bool {
			return unicode.IsSpace(r) || r == ','
		})
		for _, f := range fields {
			if upper {
				f = strings.ToUpper(f)
			} else {
				f = strings.ToLower(f)
			}
			m[f] = true
		}
	}
	return m
}

// Options returns the DAV compliance classes and the allowed methods of a
// resource.
func (c *Client) Options(ctx context.Context, path string) (classes map[string]bool, methods map[string]bool, err error) {
	req, err := c.NewRequest(ctx, http.MethodOptions, path, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}
	resp.Body.Close()

	classes = parseCommaSeparatedSet(resp.Header["Dav"], false)
	if !classes["1"] {
		return nil, nil, fmt.Errorf("webdav: server doesn't support DAV class 1")
	}

	methods = parseCommaSeparatedSet(resp.Header["Allow"], true)
	return classes, methods, nil
}
