package caldav

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEventICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//kaldav//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240304T090000Z\r\n" +
	"DTEND:20240304T091500Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func writeFile(t *testing.T, name, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(data), 0o644))
}

func TestLocalDirectory_Import(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "work", "standup.ics"), testEventICS)
	writeFile(t, filepath.Join(root, "work", "notes.txt"), "not a calendar")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	dir := LocalDirectory(root)

	names, err := dir.Calendars()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"work", "empty"}, names)

	logger, hook := test.NewNullLogger()
	b := NewMemoryBackend("/user/")
	ctx := context.Background()
	require.NoError(t, dir.Import(ctx, b, logger))
	assert.Len(t, hook.AllEntries(), 2)

	cals, err := b.ListCalendars(ctx)
	require.NoError(t, err)
	require.Len(t, cals, 2)
	assert.Equal(t, "/user/calendars/empty/", cals[0].Path)
	assert.Equal(t, "/user/calendars/work/", cals[1].Path)

	co, err := b.GetCalendarObject(ctx, "/user/calendars/work/standup.ics")
	require.NoError(t, err)
	assert.NotEmpty(t, co.ETag)

	// importing again updates objects in place
	require.NoError(t, dir.Import(ctx, b, logger))
}

func TestLocalDirectory_InvalidName(t *testing.T) {
	t.Parallel()

	dir := LocalDirectory(t.TempDir())
	for _, name := range []string{"", "..", "a/b", "a\x00"} {
		_, err := dir.Objects(name)
		assert.Error(t, err, name)
	}
}

func TestLocalDirectory_BadFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "broken", "bad.ics"), "BEGIN:VCALENDAR\r\nthis is not ical\r\n")

	_, err := LocalDirectory(root).Objects("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}
