package caldav

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/sirupsen/logrus"

	"github.com/kaldav/go-kaldav/internal"
)

// LocalDirectory is a directory of calendars: each subdirectory is a
// calendar and each .ics file inside it a calendar object.
type LocalDirectory string

// Calendars returns the names of the calendar subdirectories.
func (dir LocalDirectory) Calendars() ([]string, error) {
	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Objects decodes the .ics files of the named calendar, keyed by file name.
func (dir LocalDirectory) Objects(calendar string) (map[string]*ical.Calendar, error) {
	p, err := dir.path(calendar)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}

	objs := make(map[string]*ical.Calendar)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".ics") {
			continue
		}

		cal, err := decodeFile(filepath.Join(p, entry.Name()))
		if err != nil {
			return nil, err
		}
		objs[entry.Name()] = cal
	}
	return objs, nil
}

func (dir LocalDirectory) path(name string) (string, error) {
	if strings.ContainsAny(name, "/\x00") || (filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator)) {
		return "", fmt.Errorf("caldav: invalid character in calendar name %q", name)
	}
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("caldav: invalid calendar name %q", name)
	}
	return filepath.Join(string(dir), name), nil
}

func decodeFile(name string) (*ical.Calendar, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cal, err := ical.NewDecoder(f).Decode()
	if err != nil {
		return nil, fmt.Errorf("caldav: failed to decode %v: %w", name, err)
	}
	return cal, nil
}

// Import creates one calendar per subdirectory of dir in the backend's home
// set and stores the objects found there. Calendars that already exist are
// filled in place.
func (dir LocalDirectory) Import(ctx context.Context, backend Backend, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	homeSet, err := backend.CalendarHomeSetPath(ctx)
	if err != nil {
		return err
	}

	names, err := dir.Calendars()
	if err != nil {
		return err
	}

	for _, name := range names {
		calPath := path.Join(homeSet, name) + "/"
		if _, err := backend.GetCalendar(ctx, calPath); internal.IsNotFound(err) {
			cal := Calendar{Path: calPath, Name: name, SupportedComponentSet: []string{ical.CompEvent, ical.CompToDo, ical.CompJournal}}
			if err := backend.CreateCalendar(ctx, &cal); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		objs, err := dir.Objects(name)
		if err != nil {
			return err
		}
		for file, data := range objs {
			if _, err := backend.PutCalendarObject(ctx, calPath+file, data, nil); err != nil {
				return fmt.Errorf("caldav: failed to import %v/%v: %w", name, file, err)
			}
		}

		logger.WithFields(logrus.Fields{
			"calendar": calPath,
			"objects":  len(objs),
		}).Info("Imported calendar")
	}
	return nil
}
