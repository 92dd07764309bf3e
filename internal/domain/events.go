package domain

import "encoding/json"

// Event names exchanged on the realtime channel. Inbound and outbound
// messages share one envelope: {"type": <event>, "payload": <variant>}.
const (
	EventJoin             = "join"
	EventPeers            = "peers"
	EventPeerJoined       = "peer-joined"
	EventPeerLeft         = "peer-left"
	EventRoomParticipants = "room-participants"
	EventSignal           = "signal"
	EventChat             = "chat"
	EventQuizCreate       = "quiz:create"
	EventQuizNew          = "quiz:new"
	EventQuizDenied       = "quiz:denied"
	EventQuizAnswer       = "quiz:answer"
	EventQuizAnswered     = "quiz:answered"
	EventQuizTimeUp       = "quiz:time-up"
	EventSessionEnd       = "session:end"
	EventSessionEndDenied = "session:end:denied"
	EventSessionSummary   = "session:summary"
	EventSessionEnded     = "session:ended"
)

// Denial reasons, surfaced to the requester only and never broadcast.
const (
	ReasonOnlyOwner         = "ONLY_OWNER"
	ReasonOnlyCreator       = "ONLY_CREATOR"
	ReasonQuizAlreadyActive = "QUIZ_ALREADY_ACTIVE"
)

// PeerRef identifies a connection in membership-change broadcasts.
type PeerRef struct {
	ID string `json:"id"`
}

// SignalMessage is an opaque negotiation payload relayed between two peers.
// Data is never interpreted by the server.
type SignalMessage struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// ChatMessage is a chat line with the timestamp stamped by the server,
// in milliseconds since the Unix epoch.
type ChatMessage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
	Ts   int64  `json:"ts"`
}

// QuizAnnouncement is broadcast to the room when a quiz goes live.
type QuizAnnouncement struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	CorrectIndex    *int     `json:"correctIndex"`
	StartTime       int64    `json:"startTime"`
	DurationSeconds int      `json:"durationSeconds"`
}

// AnswerBroadcast announces one recorded response to the room.
type AnswerBroadcast struct {
	QuizID      string `json:"quizId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AnswerIndex int    `json:"answerIndex"`
	IsCorrect   *bool  `json:"isCorrect"`
}

// TimeUp reveals the correct option when a quiz window closes.
type TimeUp struct {
	QuizID       string `json:"quizId"`
	CorrectIndex *int   `json:"correctIndex"`
}

// Denial carries the reason a creator-only or single-flight operation
// was refused.
type Denial struct {
	Reason string `json:"reason"`
}

// SessionEnded is the terminal broadcast of a session. ForceLeave tells
// clients the room membership is about to be cleared.
type SessionEnded struct {
	ForceLeave bool           `json:"forceLeave"`
	Payload    SessionSummary `json:"payload"`
}
