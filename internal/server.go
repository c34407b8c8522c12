package internal

import (
	"encoding/xml"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
)

// HTTPError is returned for responses with a non-2xx status. Method and URL
// identify the request, Body holds the beginning of the response text.
type HTTPError struct {
	Method string
	URL    string
	Code   int
	Body   string
	Err    error
}

func HTTPErrorFromError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return &HTTPError{Code: http.StatusInternalServerError, Err: err}
}

func HTTPErrorf(code int, format string, a ...interface{}) *HTTPError {
	return &HTTPError{Code: code, Err: fmt.Errorf(format, a...)}
}

// IsNotFound reports whether err is an HTTP 404 error.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusNotFound
}

func (err *HTTPError) Error() string {
	s := fmt.Sprintf("%v %v", err.Code, http.StatusText(err.Code))
	if err.Method != "" {
		s = fmt.Sprintf("%v %v: %v", err.Method, err.URL, s)
	}

	switch {
	case err.Err != nil:
		return fmt.Sprintf("%v: %v", s, err.Err)
	case err.Body != "":
		return fmt.Sprintf("%v: %v", s, err.Body)
	default:
		return s
	}
}

func (err *HTTPError) Unwrap() error {
	return err.Err
}

// ServeError writes err as a response. DAV error elements, such as CalDAV
// preconditions, are written as XML and everything else as plain text.
func ServeError(w http.ResponseWriter, err error) {
	code := HTTPErrorFromError(err).Code

	var errElt *Error
	if errors.As(err, &errElt) {
		ServeXML(w, code).Encode(errElt)
		return
	}

	http.Error(w, err.Error(), code)
}

// DecodeXMLRequest decodes the XML body of r into v.
func DecodeXMLRequest(r *http.Request, v interface{}) error {
	t, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if t != "application/xml" && t != "text/xml" {
		return HTTPErrorf(http.StatusBadRequest, "webdav: expected application/xml request")
	}

	if err := xml.NewDecoder(r.Body).Decode(v); err != nil {
		return &HTTPError{Code: http.StatusBadRequest, Err: err}
	}
	return nil
}

// ServeXML writes the XML header with the given status and returns an
// encoder for the body.
func ServeXML(w http.ResponseWriter, code int) *xml.Encoder {
	w.Header().Add("Content-Type", "text/xml; charset=\"utf-8\"")
	w.WriteHeader(code)
	w.Write([]byte(xml.Header))
	return xml.NewEncoder(w)
}

func ServeMultistatus(w http.ResponseWriter, ms *Multistatus) error {
	// TODO: streaming
	return ServeXML(w, http.StatusMultiStatus).Encode(ms)
}

// PropfindFunc returns the value of a property. raw is the requested element.
type PropfindFunc func(raw *RawXMLValue) (interface{}, error)

// NewPropfindResponse builds the response for a resource answering propfind
// from the set of properties it supports.
func NewPropfindResponse(href string, propfind *Propfind, props map[xml.Name]PropfindFunc) (*Response, error) {
	resp := NewOKResponse(href)
	resp.Status = nil

	if _, ok := props[ResourceTypeName]; !ok {
		props[ResourceTypeName] = func(*RawXMLValue) (interface{}, error) {
			return NewResourceType(), nil
		}
	}

	switch {
	case propfind.PropName != nil:
		for _, xmlName := range sortedNames(props) {
			emptyVal := NewRawXMLElement(xmlName, nil, nil)
			if err := resp.EncodeProp(http.StatusOK, emptyVal); err != nil {
				return nil, err
			}
		}
	case propfind.AllProp != nil:
		for _, xmlName := range sortedNames(props) {
			emptyVal := NewRawXMLElement(xmlName, nil, nil)

			code := http.StatusOK
			val, err := props[xmlName](emptyVal)
			if err != nil {
				code = HTTPErrorFromError(err).Code
				val = emptyVal
			}

			if err := resp.EncodeProp(code, val); err != nil {
				return nil, err
			}
		}
	case propfind.Prop != nil:
		for _, raw := range propfind.Prop.Raw {
			xmlName, ok := raw.XMLName()
			if !ok {
				continue
			}

			emptyVal := NewRawXMLElement(xmlName, nil, nil)

			code := http.StatusNotFound
			var val interface{} = emptyVal
			if f, ok := props[xmlName]; ok {
				if v, err := f(&raw); err != nil {
					code = HTTPErrorFromError(err).Code
				} else {
					code = http.StatusOK
					val = v
				}
			}

			if err := resp.EncodeProp(code, val); err != nil {
				return nil, err
			}
		}
	default:
		return nil, HTTPErrorf(http.StatusBadRequest, "webdav: request missing propname, allprop or prop element")
	}

	return resp, nil
}

func sortedNames(props map[xml.Name]PropfindFunc) []xml.Name {
	names := make([]xml.Name, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].Space != names[j].Space {
			return names[i].Space < names[j].Space
		}
		return names[i].Local < names[j].Local
	})
	return names
}
