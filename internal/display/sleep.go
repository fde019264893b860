package display

import "time"

// SleepWindow blanks the board from StartHour until WakeHour, wrapping past midnight
type SleepWindow struct {
	Enabled   bool
	StartHour int
	WakeHour  int
}

// Asleep reports whether the board should be dark at t.
// Equal start and wake hours mean the board never sleeps.
func (w SleepWindow) Asleep(t time.Time) bool {
	if !w.Enabled || w.StartHour == w.WakeHour {
		return false
	}

	hour := t.Hour()
	if w.StartHour < w.WakeHour {
		return w.StartHour <= hour && hour < w.WakeHour
	}
	return hour >= w.StartHour || hour < w.WakeHour
}

// UntilWake returns how long until the window ends, or zero when awake
func (w SleepWindow) UntilWake(t time.Time) time.Duration {
	if !w.Asleep(t) {
		return 0
	}

	wake := time.Date(t.Year(), t.Month(), t.Day(), w.WakeHour, 0, 0, 0, t.Location())
	if !wake.After(t) {
		wake = wake.AddDate(0, 0, 1)
	}
	return wake.Sub(t)
}
