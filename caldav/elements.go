package caldav

import (
	"encoding/xml"

	"github.com/kaldav/go-kaldav/internal"
)

const (
	namespace      = "urn:ietf:params:xml:ns:caldav"
	appleNamespace = "http://apple.com/ns/ical/"
)

var (
	calendarHomeSetName = xml.Name{Space: namespace, Local: "calendar-home-set"}
	calendarName        = xml.Name{Space: namespace, Local: "calendar"}

	calendarDescriptionName           = xml.Name{Space: namespace, Local: "calendar-description"}
	calendarTimezoneName              = xml.Name{Space: namespace, Local: "calendar-timezone"}
	supportedCalendarDataName         = xml.Name{Space: namespace, Local: "supported-calendar-data"}
	supportedCalendarComponentSetName = xml.Name{Space: namespace, Local: "supported-calendar-component-set"}
	maxResourceSizeName               = xml.Name{Space: namespace, Local: "max-resource-size"}
	calendarDataName                  = xml.Name{Space: namespace, Local: "calendar-data"}

	calendarColorName = xml.Name{Space: appleNamespace, Local: "calendar-color"}
)

// https://tools.ietf.org/html/rfc4791#section-6.2.1
type calendarHomeSet struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set"`
	Href    internal.Href `xml:"DAV: href"`
}

// https://tools.ietf.org/html/rfc4791#section-5.2.1
type calendarDescription struct {
	XMLName     xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-description"`
	Description string   `xml:",chardata"`
}

// https://tools.ietf.org/html/rfc4791#section-5.2.2
type calendarTimezone struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-timezone"`
	Timezone string   `xml:",chardata"`
}

// Apple extension, supported by most servers.
type calendarColor struct {
	XMLName xml.Name `xml:"http://apple.com/ns/ical/ calendar-color"`
	Color   string   `xml:",chardata"`
}

// https://tools.ietf.org/html/rfc4791#section-5.2.4
type supportedCalendarData struct {
	XMLName xml.Name           `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-data"`
	Types   []calendarDataType `xml:"calendar-data"`
}

// https://tools.ietf.org/html/rfc4791#section-9.6
type calendarDataType struct {
	XMLName     xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	ContentType string   `xml:"content-type,attr"`
	Version     string   `xml:"version,attr"`
}

// https://tools.ietf.org/html/rfc4791#section-5.2.3
type supportedCalendarComponentSet struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set"`
	Comp    []comp   `xml:"comp"`
}

// https://tools.ietf.org/html/rfc4791#section-9.6.1
type comp struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav comp"`
	Name    string   `xml:"name,attr"`
}

// https://tools.ietf.org/html/rfc4791#section-5.2.5
type maxResourceSize struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav max-resource-size"`
	Size    int64    `xml:",chardata"`
}

// https://tools.ietf.org/html/rfc4791#section-9.6
type calendarDataResp struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	Data    []byte   `xml:",chardata"`
}

// reportReq is the body of a REPORT request. The filter of a calendar-query
// is decoded separately by filter.Decode.
type reportReq struct {
	Query    *calendarQuery
	Multiget *calendarMultiget
}

func (r *reportReq) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var v interface{}
	switch start.Name {
	case xml.Name{Space: namespace, Local: "calendar-query"}:
		r.Query = &calendarQuery{}
		v = r.Query
	case xml.Name{Space: namespace, Local: "calendar-multiget"}:
		r.Multiget = &calendarMultiget{}
		v = r.Multiget
	default:
		return d.Skip()
	}
	return d.DecodeElement(v, &start)
}

// https://tools.ietf.org/html/rfc4791#section-9.5
type calendarQuery struct {
	XMLName  xml.Name       `xml:"urn:ietf:params:xml:ns:caldav calendar-query"`
	Prop     *internal.Prop `xml:"DAV: prop,omitempty"`
	AllProp  *struct{}      `xml:"DAV: allprop,omitempty"`
	PropName *struct{}      `xml:"DAV: propname,omitempty"`
}

// https://tools.ietf.org/html/rfc4791#section-9.10
type calendarMultiget struct {
	XMLName  xml.Name        `xml:"urn:ietf:params:xml:ns:caldav calendar-multiget"`
	Hrefs    []internal.Href `xml:"DAV: href"`
	Prop     *internal.Prop  `xml:"DAV: prop,omitempty"`
	AllProp  *struct{}       `xml:"DAV: allprop,omitempty"`
	PropName *struct{}       `xml:"DAV: propname,omitempty"`
}

// https://tools.ietf.org/html/rfc4791#section-5.3.1.2
type mkcalendarReq struct {
	XMLName xml.Name       `xml:"urn:ietf:params:xml:ns:caldav mkcalendar"`
	Set     *mkcalendarSet `xml:"DAV: set,omitempty"`
}

type mkcalendarSet struct {
	XMLName xml.Name      `xml:"DAV: set"`
	Prop    internal.Prop `xml:"DAV: prop"`
}

// mkcalendarBody is the request body sent by Client.NewCalendar. It's kept
// apart from mkcalendarReq so the timezone goes out as CDATA.
type mkcalendarBody struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav mkcalendar"`
	Set     struct {
		Prop mkcalendarProp `xml:"DAV: prop"`
	} `xml:"DAV: set"`
}

type mkcalendarProp struct {
	DisplayName   internal.DisplayName
	Description   *calendarDescription
	ComponentSet  *supportedCalendarComponentSet
	Timezone      *mkcalendarTimezone
	CalendarColor *calendarColor
}

type mkcalendarTimezone struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-timezone"`
	Timezone string   `xml:",cdata"`
}
