package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaldav/go-kaldav/filter/dsl"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "comp filter",
			input:    `CompFilter::new("VEVENT")`,
			expected: `filter.New().Append(filter.NewCompFilter("VEVENT"))`,
		},
		{
			name:     "nested",
			input:    `CompFilter::new("VCALENDAR") { CompFilter::new("VEVENT") {} }`,
			expected: `filter.New().Append(filter.NewCompFilter("VCALENDAR").Append(filter.NewCompFilter("VEVENT")))`,
		},
		{
			name: "setters",
			input: `CompFilter::new("VEVENT") {
				prop_filter: PropFilter::new("URL") {
					text_match: TextMatch::default() { text: "https://example.org", negateCondition: true },
				}
			}`,
			expected: `filter.New().Append(filter.NewCompFilter("VEVENT").PropFilter(filter.NewPropFilter("URL").TextMatch(filter.TextMatch{}.Text("https://example.org").NegateCondition(true))))`,
		},
		{
			name:     "time range with variable",
			input:    `CompFilter::new("VEVENT") { time_range: TimeRange { start: Some(start), end: None } }`,
			expected: `filter.New().Append(filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{Start: start}))`,
		},
		{
			name:     "time range with date",
			input:    `CompFilter::new("VEVENT") { time_range: TimeRange { start: time::utc(2006, 1, 4) } }`,
			expected: `filter.New().Append(filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{Start: time.Date(2006, time.Month(1), 4, 0, 0, 0, 0, time.UTC)}))`,
		},
		{
			name:     "parsed date is resolved",
			input:    `CompFilter::new("VEVENT") { time_range: TimeRange { end: time::parse("20060105T000000Z") } }`,
			expected: `filter.New().Append(filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{End: time.Date(2006, time.January, 5, 0, 0, 0, 0, time.UTC)}))`,
		},
		{
			name:     "qualified variable",
			input:    `CompFilter::new(cfg::Component)`,
			expected: `filter.New().Append(filter.NewCompFilter(cfg.Component))`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			expr, err := dsl.Parse(tt.input)
			require.NoError(t, err)

			got, err := dsl.Generate(expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		message string
	}{
		{
			name:    "unknown method",
			input:   `CompFilter::new("VEVENT") { frobnicate: true }`,
			message: "unknown method frobnicate",
		},
		{
			name:    "non-literal date",
			input:   `CompFilter::new("VEVENT") { time_range: TimeRange { start: time::parse(when) } }`,
			message: "time::parse needs a string literal",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			expr, err := dsl.Parse(tt.input)
			require.NoError(t, err)

			_, err = dsl.Generate(expr)
			require.Error(t, err)

			var evalErr *dsl.EvalError
			require.ErrorAs(t, err, &evalErr)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestGenerateFile(t *testing.T) {
	t.Parallel()

	expr, err := dsl.Parse(`CompFilter::new("VCALENDAR") {
	CompFilter::new("VEVENT") {
		time_range: TimeRange { start: time::utc(2006, 1, 4) },
	}
}`)
	require.NoError(t, err)

	src, err := dsl.GenerateFile("calendars", "Events", expr)
	require.NoError(t, err)

	expected := `// Code generated by kaldav filter gen. DO NOT EDIT.

package calendars

import (
	"time"

	"github.com/kaldav/go-kaldav/filter"
)

// Events returns the filter
//
//	CompFilter::new("VCALENDAR") {
//		CompFilter::new("VEVENT") {
//			time_range: TimeRange { start: time::utc(2006, 1, 4) },
//		}
//	}
func Events() filter.Filter {
	return filter.New().Append(filter.NewCompFilter("VCALENDAR").Append(filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{Start: time.Date(2006, time.Month(1), 4, 0, 0, 0, 0, time.UTC)})))
}
`
	assert.Equal(t, expected, string(src))
}

// Number literals are decimal in both paths, leading zeros included.
func TestGenerate_DecimalNumbers(t *testing.T) {
	t.Parallel()

	input := `CompFilter::new("VEVENT") { time_range: TimeRange { start: time::utc(2006, 010, 04, 08, 09, 1_0) } }`

	f, err := dsl.Compile(input)
	require.NoError(t, err)
	assert.Equal(t,
		`<c:filter><c:comp-filter name="VEVENT"><c:time-range start="20061004T080910Z" end="+infinity" /></c:comp-filter></c:filter>`,
		f.ToXML())

	expr, err := dsl.Parse(input)
	require.NoError(t, err)

	got, err := dsl.Generate(expr)
	require.NoError(t, err)
	assert.Equal(t,
		`filter.New().Append(filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{Start: time.Date(2006, time.Month(10), 4, 8, 9, 10, 0, time.UTC)}))`,
		got)

	src, err := dsl.GenerateFile("calendars", "Events", expr)
	require.NoError(t, err)
	assert.Contains(t, string(src), "time.Date(2006, time.Month(10), 4, 8, 9, 10, 0, time.UTC)")
}

func TestGenerateFile_WithoutTime(t *testing.T) {
	t.Parallel()

	expr, err := dsl.Parse(`CompFilter::new("VTODO")`)
	require.NoError(t, err)

	src, err := dsl.GenerateFile("calendars", "Todos", expr)
	require.NoError(t, err)
	assert.NotContains(t, string(src), `"time"`)
	assert.Contains(t, string(src), "func Todos() filter.Filter {")

	_, err = dsl.GenerateFile("my-pkg", "Todos", expr)
	require.Error(t, err)
}
