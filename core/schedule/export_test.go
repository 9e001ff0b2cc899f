package schedule

import "time"

// SetNow replaces the service clock; the returned func restores it.
func SetNow(f func() time.Time) (reset func()) {
	nowFunc = f
	return func() { nowFunc = time.Now }
}
