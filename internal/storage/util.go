package storage

import (
	"os"
	"time"
)

// DateLayout is the layout of date keys.
const DateLayout = "2006-01-02"

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// DateKey formats t as a date key in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}
