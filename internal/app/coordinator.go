package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"classroom-live-service/internal/domain"
)

// Store is the narrow persistence port consumed by the coordinator. The
// in-memory registries never depend on a store write having completed;
// quiz and response rows are persist-first instead, so a store failure
// aborts the operation without corrupting registry state.
type Store interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	BindCreatorConn(ctx context.Context, roomID, connID string) error
	CreateSession(ctx context.Context, sess domain.Session) error
	OpenSession(ctx context.Context, roomID string) (domain.Session, error)
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	CreateResponse(ctx context.Context, resp domain.Response) error
	CountQuizzes(ctx context.Context, sessionID string) (int, error)
	ListResponses(ctx context.Context, sessionID string) ([]domain.Response, error)
	RoomsByOwner(ctx context.Context, userID string, creatorKeys []string) ([]string, error)
	ListSessions(ctx context.Context, roomID string, limit int) ([]domain.Session, error)
}

// Publisher delivers outbound events to live connections. Delivery is
// best-effort: a connection that is gone by publish time is skipped
// silently, which is an expected race rather than a fault.
type Publisher interface {
	Send(connID, event string, payload any)
	SendMany(connIDs []string, event string, payload any)
}

// SummaryCache caches summaries of ended sessions, which are immutable.
type SummaryCache interface {
	GetSummary(ctx context.Context, sessionID string, fill func(context.Context) (domain.SessionSummary, error)) (domain.SessionSummary, error)
}

// QuizDraft is the creator's quiz:create request.
type QuizDraft struct {
	RoomID          string
	Question        string
	Options         []string
	CorrectIndex    *int
	CreatedBy       string
	DurationSeconds int
}

const (
	defaultQuizSeconds = 60
	// Clients get a short window to process the terminal session broadcast
	// before losing room membership.
	defaultLeaveDelay = 300 * time.Millisecond

	historySessionLimit = 100
)

// Coordinator dispatches inbound connection events to the presence
// registry, the signaling relay, the quiz runner, and the session
// lifecycle, and emits the resulting outbound events.
type Coordinator struct {
	store    Store
	pub      Publisher
	presence *Presence
	runner   *quizRunner
	cache    SummaryCache

	sf  singleflight.Group
	now func() time.Time

	quizUnit   time.Duration
	leaveDelay time.Duration
}

func NewCoordinator(store Store, pub Publisher) *Coordinator {
	return NewCoordinatorWithClock(store, pub, time.Now, time.Second, defaultLeaveDelay)
}

// NewCoordinatorWithClock is test-only: it fixes the clock and scales the
// unit a quiz duration is counted in, so expiry can be exercised without
// multi-second sleeps.
func NewCoordinatorWithClock(store Store, pub Publisher, now func() time.Time, quizUnit, leaveDelay time.Duration) *Coordinator {
	return &Coordinator{
		store:      store,
		pub:        pub,
		presence:   NewPresence(),
		runner:     newQuizRunner(),
		now:        now,
		quizUnit:   quizUnit,
		leaveDelay: leaveDelay,
	}
}

// SetSummaryCache installs an optional cache for ended-session summaries.
func (c *Coordinator) SetSummaryCache(cache SummaryCache) {
	c.cache = cache
}

// Presence exposes the registry for transports that need roster reads.
func (c *Coordinator) Presence() *Presence {
	return c.presence
}

// Join binds the connection to the room: records presence, lazily creates
// the room row and the open session, binds the creator connection when the
// trust-on-first-use rule matches, and notifies the joiner and the room.
func (c *Coordinator) Join(ctx context.Context, roomID, connID, name, creatorKey string) {
	if name == "" {
		name = domain.GuestName
	}
	others := c.presence.Join(roomID, connID, name)

	room, err := c.store.GetRoom(ctx, roomID)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		room = domain.Room{ID: roomID, CreatedAt: c.now()}
		if err := c.store.CreateRoom(ctx, room); err != nil && !errors.Is(err, domain.ErrRoomExists) {
			log.Error().Err(err).Str("room", roomID).Msg("create room on join")
		}
	case err != nil:
		log.Error().Err(err).Str("room", roomID).Msg("load room on join")
	default:
		c.maybeBindCreator(ctx, room, connID, name, creatorKey)
	}

	if _, err := c.ensureSession(ctx, roomID); err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("ensure session on join")
	}

	c.pub.Send(connID, domain.EventPeers, others)
	otherIDs := make([]string, 0, len(others))
	for _, peer := range others {
		otherIDs = append(otherIDs, peer.ID)
	}
	c.pub.SendMany(otherIDs, domain.EventPeerJoined, domain.Peer{ID: connID, Name: name})
	c.broadcastRoster(roomID)
}

// maybeBindCreator applies the bind rule: first join presenting the room's
// creator key, or matching its recorded creator name, takes the creator
// slot, and only while no connection is bound. Later matches never rebind.
func (c *Coordinator) maybeBindCreator(ctx context.Context, room domain.Room, connID, name, creatorKey string) {
	if room.CreatorConn != "" {
		return
	}
	keyMatch := creatorKey != "" && room.CreatorKey != "" && creatorKey == room.CreatorKey
	nameMatch := room.CreatorName != "" && room.CreatorName == name
	if !keyMatch && !nameMatch {
		return
	}
	if err := c.store.BindCreatorConn(ctx, room.ID, connID); err != nil {
		log.Error().Err(err).Str("room", room.ID).Msg("bind creator connection")
	}
}

// Disconnect tears down a connection's presence. roomID may be empty when
// the connection never joined a room.
func (c *Coordinator) Disconnect(_ context.Context, roomID, connID string) {
	c.presence.Forget(connID)
	if roomID == "" {
		return
	}
	if !c.presence.Leave(roomID, connID) {
		return
	}
	c.pub.SendMany(c.presence.Members(roomID), domain.EventPeerLeft, domain.PeerRef{ID: connID})
	c.broadcastRoster(roomID)
}

// Signal forwards an opaque negotiation payload to one target connection,
// tagged with the sender. A vanished target drops the message silently.
func (c *Coordinator) Signal(fromConn, toConn string, data json.RawMessage) {
	c.pub.Send(toConn, domain.EventSignal, domain.SignalMessage{From: fromConn, Data: data})
}

// Chat relays a chat line to the sender's room with a server timestamp.
func (c *Coordinator) Chat(roomID, connID, name, text string) {
	if roomID == "" {
		return
	}
	if name == "" {
		name = domain.GuestName
	}
	c.pub.SendMany(c.presence.Members(roomID), domain.EventChat, domain.ChatMessage{
		ID:   connID,
		Name: name,
		Msg:  text,
		Ts:   c.now().UnixMilli(),
	})
}

// CreateQuiz starts a timed quiz in the room. Creator-only; malformed
// drafts are dropped without a reply; a second create while any quiz is
// live anywhere on the server is refused with QUIZ_ALREADY_ACTIVE.
func (c *Coordinator) CreateQuiz(ctx context.Context, connID string, draft QuizDraft) error {
	room, err := c.store.GetRoom(ctx, draft.RoomID)
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		// Store failure, not an authorization outcome. No denial is sent.
		log.Error().Err(err).Str("room", draft.RoomID).Msg("load room for quiz")
		return err
	}
	if err != nil || room.CreatorConn == "" || room.CreatorConn != connID {
		c.pub.Send(connID, domain.EventQuizDenied, domain.Denial{Reason: domain.ReasonOnlyOwner})
		return domain.ErrNotCreator
	}

	// Clients validate too, but the server re-checks and stays silent on
	// malformed drafts.
	if strings.TrimSpace(draft.Question) == "" || countNonEmpty(draft.Options) < 2 {
		return nil
	}

	if !c.runner.reserve() {
		c.pub.Send(connID, domain.EventQuizDenied, domain.Denial{Reason: domain.ReasonQuizAlreadyActive})
		return domain.ErrQuizAlreadyActive
	}

	sessionID, err := c.ensureSession(ctx, draft.RoomID)
	if err != nil {
		c.runner.release()
		log.Error().Err(err).Str("room", draft.RoomID).Msg("ensure session for quiz")
		return err
	}

	seconds := draft.DurationSeconds
	if seconds <= 0 {
		seconds = defaultQuizSeconds
	}
	quiz := domain.Quiz{
		ID:              uuid.NewString(),
		RoomID:          draft.RoomID,
		SessionID:       sessionID,
		Question:        draft.Question,
		Options:         draft.Options,
		CorrectIndex:    draft.CorrectIndex,
		CreatedBy:       draft.CreatedBy,
		DurationSeconds: seconds,
		StartedAt:       c.now(),
	}
	if err := c.store.CreateQuiz(ctx, quiz); err != nil {
		c.runner.release()
		log.Error().Err(err).Str("quiz", quiz.ID).Msg("persist quiz")
		return err
	}

	quizID := quiz.ID
	c.runner.arm(quiz, time.Duration(seconds)*c.quizUnit, func() {
		c.expireQuiz(quizID)
	})

	c.pub.SendMany(c.presence.Members(draft.RoomID), domain.EventQuizNew, domain.QuizAnnouncement{
		ID:              quiz.ID,
		Question:        quiz.Question,
		Options:         quiz.Options,
		CorrectIndex:    quiz.CorrectIndex,
		StartTime:       quiz.StartedAt.UnixMilli(),
		DurationSeconds: seconds,
	})
	return nil
}

func (c *Coordinator) expireQuiz(quizID string) {
	quiz, ok := c.runner.clear(quizID)
	if !ok {
		return
	}
	c.pub.SendMany(c.presence.Members(quiz.RoomID), domain.EventQuizTimeUp, domain.TimeUp{
		QuizID:       quiz.ID,
		CorrectIndex: quiz.CorrectIndex,
	})
}

// SubmitAnswer records a response while the quiz window is open. Answers
// for an expired or unknown quiz are ignored without an error: a race
// between the client countdown and server expiry is expected.
func (c *Coordinator) SubmitAnswer(ctx context.Context, quizID, userID, displayName string, answerIndex int) error {
	quiz, ok := c.runner.activeQuiz()
	if !ok || quiz.ID != quizID {
		return nil
	}

	var isCorrect *bool
	if quiz.CorrectIndex != nil {
		v := answerIndex == *quiz.CorrectIndex
		isCorrect = &v
	}
	resp := domain.Response{
		ID:          uuid.NewString(),
		QuizID:      quiz.ID,
		SessionID:   quiz.SessionID,
		UserID:      userID,
		DisplayName: displayName,
		AnswerIndex: answerIndex,
		IsCorrect:   isCorrect,
		CreatedAt:   c.now(),
	}
	if err := c.store.CreateResponse(ctx, resp); err != nil {
		log.Error().Err(err).Str("quiz", quiz.ID).Msg("persist response")
		return err
	}

	c.pub.SendMany(c.presence.Members(quiz.RoomID), domain.EventQuizAnswered, domain.AnswerBroadcast{
		QuizID:      quiz.ID,
		UserID:      userID,
		DisplayName: displayName,
		AnswerIndex: answerIndex,
		IsCorrect:   isCorrect,
	})
	return nil
}

// EndSession closes the room's open session: stamps the end timestamp,
// cancels any quiz timer tied to the room, emits the summary privately to
// the requester plus a terminal broadcast, and clears room membership
// after a short delay.
func (c *Coordinator) EndSession(ctx context.Context, roomID, connID string) error {
	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		log.Error().Err(err).Str("room", roomID).Msg("load room for session end")
		return err
	}
	if err != nil || room.CreatorConn == "" || room.CreatorConn != connID {
		c.pub.Send(connID, domain.EventSessionEndDenied, domain.Denial{Reason: domain.ReasonOnlyCreator})
		return domain.ErrNotCreator
	}

	sess, err := c.store.OpenSession(ctx, roomID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoOpenSession) {
			log.Error().Err(err).Str("room", roomID).Msg("load open session")
		}
		return err
	}
	if err := c.store.EndSession(ctx, sess.ID, c.now()); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("end session")
		return err
	}
	c.runner.cancelForRoom(roomID)

	summary, err := c.summarize(ctx, roomID, sess.ID)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("summarize session")
		return err
	}

	c.pub.Send(connID, domain.EventSessionSummary, summary)
	c.pub.SendMany(c.presence.Members(roomID), domain.EventSessionEnded, domain.SessionEnded{
		ForceLeave: true,
		Payload:    summary,
	})
	time.AfterFunc(c.leaveDelay, func() {
		c.presence.ClearRoom(roomID)
	})
	return nil
}

// CreateRoom registers a room owned by the given account identity and
// issues its creator capability key.
func (c *Coordinator) CreateRoom(ctx context.Context, roomID, creatorName, userID string) (domain.Room, error) {
	if roomID == "" {
		roomID = uuid.NewString()[:8]
	}
	if _, err := c.store.GetRoom(ctx, roomID); err == nil {
		return domain.Room{}, domain.ErrRoomExists
	} else if !errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Room{}, err
	}
	room := domain.Room{
		ID:            roomID,
		CreatorName:   creatorName,
		CreatorKey:    uuid.NewString(),
		CreatorUserID: userID,
		CreatedAt:     c.now(),
	}
	if err := c.store.CreateRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// History returns summarized past sessions for every room owned by the
// account identity or proven by one of the creator capability keys.
func (c *Coordinator) History(ctx context.Context, userID string, creatorKeys []string) ([]domain.SessionHistory, error) {
	roomIDs, err := c.store.RoomsByOwner(ctx, userID, creatorKeys)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.SessionHistory, 0)
	for _, roomID := range roomIDs {
		sessions, err := c.store.ListSessions(ctx, roomID, historySessionLimit)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			summary, err := c.summaryFor(ctx, sess)
			if err != nil {
				return nil, err
			}
			entries = append(entries, domain.SessionHistory{
				SessionID:       sess.ID,
				RoomID:          sess.RoomID,
				StartedAt:       sess.StartedAt,
				EndedAt:         sess.EndedAt,
				TotalQuestions:  summary.TotalQuestions,
				RespondentCount: summary.RespondentCount,
				Respondents:     summary.Respondents,
				CorrectByUser:   summary.CorrectByUser,
			})
		}
	}
	return entries, nil
}

// summaryFor serves ended sessions through the cache when one is
// configured; their summaries never change again.
func (c *Coordinator) summaryFor(ctx context.Context, sess domain.Session) (domain.SessionSummary, error) {
	if c.cache != nil && sess.EndedAt != nil {
		return c.cache.GetSummary(ctx, sess.ID, func(ctx context.Context) (domain.SessionSummary, error) {
			return c.summarize(ctx, sess.RoomID, sess.ID)
		})
	}
	return c.summarize(ctx, sess.RoomID, sess.ID)
}

func (c *Coordinator) summarize(ctx context.Context, roomID, sessionID string) (domain.SessionSummary, error) {
	total, err := c.store.CountQuizzes(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	responses, err := c.store.ListResponses(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	respondents := Respondents(responses)
	return domain.SessionSummary{
		RoomID:          roomID,
		SessionID:       sessionID,
		TotalQuestions:  total,
		RespondentCount: len(respondents),
		Respondents:     respondents,
		CorrectByUser:   Aggregate(responses),
	}, nil
}

// ensureSession returns the room's open session id, creating one if none
// exists. Concurrent calls for the same room collapse onto a single
// create, so a near-simultaneous double join cannot open two sessions.
func (c *Coordinator) ensureSession(ctx context.Context, roomID string) (string, error) {
	v, err, _ := c.sf.Do("session:"+roomID, func() (any, error) {
		sess, err := c.store.OpenSession(ctx, roomID)
		if err == nil {
			return sess.ID, nil
		}
		if !errors.Is(err, domain.ErrNoOpenSession) {
			return "", err
		}
		sess = domain.Session{ID: uuid.NewString(), RoomID: roomID, StartedAt: c.now()}
		if err := c.store.CreateSession(ctx, sess); err != nil {
			return "", err
		}
		return sess.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Coordinator) broadcastRoster(roomID string) {
	roster := c.presence.Participants(roomID)
	c.pub.SendMany(c.presence.Members(roomID), domain.EventRoomParticipants, roster)
}

func countNonEmpty(options []string) int {
	n := 0
	for _, opt := range options {
		if strings.TrimSpace(opt) != "" {
			n++
		}
	}
	return n
}
