package model

// Interval is one bookable time range inside a slot, "HH:mm" local times.
type Interval struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Slot is an admin-defined bookable block on a single day.
type Slot struct {
	ID         string              `json:"id"`
	Date       string              `json:"date"` // YYYY-MM-DD
	Type       string              `json:"type"`
	Categories []Category          `json:"categories"`
	Intervals  map[string]Interval `json:"intervals"`
	Notes      string              `json:"notes,omitempty"`
	Capacity   *int                `json:"capacity,omitempty"`
	Deleted    bool                `json:"deleted,omitempty"`
}

// HasInterval reports whether key names one of the slot's intervals.
func (s *Slot) HasInterval(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Intervals[key]
	return ok
}
