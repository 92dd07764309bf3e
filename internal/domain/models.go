package domain

import "time"

// Peer is the wire view of a connected participant.
type Peer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is a persistent classroom namespace with one designated creator.
// CreatorConn is the transient connection identity, bound lazily when the
// creator first joins and never rebound while set.
type Room struct {
	ID            string
	CreatorName   string
	CreatorConn   string
	CreatorKey    string
	CreatorUserID string
	CreatedAt     time.Time
}

// Session is one bounded occurrence of room activity. EndedAt is nil while
// the session is open; at most one open session exists per room.
type Session struct {
	ID        string
	RoomID    string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Quiz is one timed multiple-choice question broadcast to a room.
// CorrectIndex is nil for ungraded quizzes.
type Quiz struct {
	ID              string
	RoomID          string
	SessionID       string
	Question        string
	Options         []string
	CorrectIndex    *int
	CreatedBy       string
	DurationSeconds int
	StartedAt       time.Time
}

// Response is one participant's answer to one quiz. IsCorrect is nil when
// the quiz carries no correct index. Duplicate responses from the same
// participant are all recorded; the server does not deduplicate.
type Response struct {
	ID          string
	QuizID      string
	SessionID   string
	UserID      string
	DisplayName string
	AnswerIndex int
	IsCorrect   *bool
	CreatedAt   time.Time
}

// UserStat aggregates one participant's correctness within a session.
type UserStat struct {
	DisplayName   string `json:"display_name"`
	CorrectCount  int    `json:"correctCount"`
	TotalAnswered int    `json:"totalAnswered"`
}

// SessionSummary is the end-of-session report emitted to the creator and
// broadcast to the room.
type SessionSummary struct {
	RoomID          string     `json:"roomId"`
	SessionID       string     `json:"sessionId"`
	TotalQuestions  int        `json:"totalQuestions"`
	RespondentCount int        `json:"respondentCount"`
	Respondents     []string   `json:"respondents"`
	CorrectByUser   []UserStat `json:"correctByUser"`
}

// SessionHistory is one past session as returned by the history endpoint.
type SessionHistory struct {
	SessionID       string     `json:"sessionId"`
	RoomID          string     `json:"roomId"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	TotalQuestions  int        `json:"totalQuestions"`
	RespondentCount int        `json:"respondentCount"`
	Respondents     []string   `json:"respondents"`
	CorrectByUser   []UserStat `json:"correctByUser"`
}

// GuestName is assigned to connections that join without a display name.
const GuestName = "Guest"

// FallbackName attributes responses recorded without a display name in
// summaries and leaderboards. It is a fixed sentinel, distinct from any real
// name, so unrelated unnamed participants are not silently merged with
// anyone else's stats.
const FallbackName = "(unknown)"
