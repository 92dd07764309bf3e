package app

import (
	"sync"
	"time"

	"classroom-live-service/internal/domain"
)

// quizRunner owns the single global active-quiz slot and its expiry timer.
// Only one quiz may be live server-wide at any instant; a second create is
// refused rather than queued. The slot goes through reserve -> arm so the
// quiz row can be persisted between the two without a competing create
// slipping in, and release backs out a reservation when persistence fails.
type quizRunner struct {
	mu       sync.Mutex
	reserved bool
	active   *domain.Quiz
	timer    *time.Timer
}

func newQuizRunner() *quizRunner {
	return &quizRunner{}
}

// reserve claims the slot. Returns false when a quiz is reserved or active.
func (r *quizRunner) reserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserved || r.active != nil {
		return false
	}
	r.reserved = true
	return true
}

// release backs out a reservation that never became active.
func (r *quizRunner) release() {
	r.mu.Lock()
	r.reserved = false
	r.mu.Unlock()
}

// arm activates a reserved quiz and schedules its expiry.
func (r *quizRunner) arm(quiz domain.Quiz, d time.Duration, fire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved = false
	r.active = &quiz
	r.timer = time.AfterFunc(d, fire)
}

// activeQuiz returns the currently running quiz, if any.
func (r *quizRunner) activeQuiz() (domain.Quiz, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return domain.Quiz{}, false
	}
	return *r.active, true
}

// clear empties the slot if the given quiz is still the active one, and
// returns it. Idempotent against the expiry/cancel race: the timer callback
// may run after a cancel, in which case clear reports false.
func (r *quizRunner) clear(quizID string) (domain.Quiz, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.ID != quizID {
		return domain.Quiz{}, false
	}
	quiz := *r.active
	r.active = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return quiz, true
}

// cancelForRoom stops the active quiz timer if the quiz belongs to the
// given room. Used when a session ends.
func (r *quizRunner) cancelForRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.RoomID != roomID {
		return
	}
	r.active = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
