package utils

import (
	"sync"
	"time"

	_ "time/tzdata"
)

var (
	cairoOnce sync.Once
	cairoLoc  *time.Location
)

// CairoLoc returns the Africa/Cairo location, or UTC if it cannot be loaded.
func CairoLoc() *time.Location {
	cairoOnce.Do(func() {
		loc, err := time.LoadLocation("Africa/Cairo")
		if err != nil {
			loc = time.UTC
		}
		cairoLoc = loc
	})
	return cairoLoc
}

// DateTime returns a string like "2025/01/15 - 16:40" in Cairo time.
func DateTime(t time.Time) string {
	return t.In(CairoLoc()).Format("2006/01/02 - 15:04")
}

// Ago renders a coarse age such as "45s", "12m" or "3h".
func Ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return d.Truncate(time.Second).String()
	case d < time.Hour:
		return d.Truncate(time.Minute).String()
	default:
		return d.Truncate(time.Hour).String()
	}
}
