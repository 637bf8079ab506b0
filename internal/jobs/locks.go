package jobs

import "sync"

// userSlots serializes jobs of one user without tying up a worker. A job
// whose user is busy is parked, and the worker that finishes the user's
// running job picks it up next.
type userSlots struct {
	mu sync.Mutex
	// A present key means the user has a running job
	parked map[int64][]task
}

func newUserSlots() *userSlots {
	return &userSlots{parked: make(map[int64][]task)}
}

// acquire reports whether t may run now. Otherwise t is parked behind the
// user's running job.
func (s *userSlots) acquire(t task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := t.job.UserID
	if q, busy := s.parked[userID]; busy {
		s.parked[userID] = append(q, t)
		return false
	}
	s.parked[userID] = nil
	return true
}

// release ends the user's running job and hands over the next parked one,
// which then owns the slot.
func (s *userSlots) release(userID int64) (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.parked[userID]
	if len(q) == 0 {
		delete(s.parked, userID)
		return task{}, false
	}
	s.parked[userID] = q[1:]
	return q[0], true
}
