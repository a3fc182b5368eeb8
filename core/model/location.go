package model

// Location is a physical site with chargers and a single waiting queue.
// Queue holds usernames in arrival order; arrival order is only used as a
// tie-break when scores are equal.
type Location struct {
	ID              string
	ResetQueueDaily bool
	Queue           []string
}

// Queued reports whether username is currently waiting at the location.
func (l Location) Queued(username string) bool {
	for _, u := range l.Queue {
		if u == username {
			return true
		}
	}
	return false
}
