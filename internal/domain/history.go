package domain

import "time"

// SlotObservation is one sampled open-count for a lot at a given weekday
// and time-of-day slot ("HH:MM" at a fixed granularity). The log is
// append-only with a bounded most-recent-N retention per lot.
type SlotObservation struct {
	LotID      string       `json:"lotId"`
	Weekday    time.Weekday `json:"weekday"`
	Slot       string       `json:"slot"`
	OpenCount  int          `json:"openCount"`
	ObservedAt time.Time    `json:"observedAt"`
}
