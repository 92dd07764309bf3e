package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classroom-live-service/internal/domain"
)

const uniqueViolation = "23505"

// Store implements app.Store on Postgres. Option lists are kept as JSON
// text in the quizzes table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, creator_name, creator_conn, creator_key, creator_user_id, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)`,
		room.ID, room.CreatorName, room.CreatorConn, room.CreatorKey, room.CreatorUserID, room.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrRoomExists
	}
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var room domain.Room
	var name, conn, key, userID sql.NullString
	err := s.pool.QueryRow(ctx, `
		SELECT id, creator_name, creator_conn, creator_key, creator_user_id, created_at
		FROM rooms WHERE id = $1`, roomID).
		Scan(&room.ID, &name, &conn, &key, &userID, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room: %w", err)
	}
	room.CreatorName = name.String
	room.CreatorConn = conn.String
	room.CreatorKey = key.String
	room.CreatorUserID = userID.String
	return room, nil
}

func (s *Store) BindCreatorConn(ctx context.Context, roomID, connID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE rooms SET creator_conn = $2 WHERE id = $1 AND creator_conn IS NULL`,
		roomID, connID)
	if err != nil {
		return fmt.Errorf("bind creator conn: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, room_id, started_at) VALUES ($1, $2, $3)`,
		sess.ID, sess.RoomID, sess.StartedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) OpenSession(ctx context.Context, roomID string) (domain.Session, error) {
	var sess domain.Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, room_id, started_at
		FROM sessions WHERE room_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1`, roomID).
		Scan(&sess.ID, &sess.RoomID, &sess.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrNoOpenSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("open session: %w", err)
	}
	return sess, nil
}

func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`,
		sessionID, endedAt)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	options, err := json.Marshal(quiz.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	correct := sql.NullInt64{}
	if quiz.CorrectIndex != nil {
		correct = sql.NullInt64{Int64: int64(*quiz.CorrectIndex), Valid: true}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, room_id, session_id, question, options, correct_index, created_by, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		quiz.ID, quiz.RoomID, quiz.SessionID, quiz.Question, string(options),
		correct, quiz.CreatedBy, quiz.DurationSeconds, quiz.StartedAt)
	if err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

func (s *Store) CreateResponse(ctx context.Context, resp domain.Response) error {
	correct := sql.NullBool{}
	if resp.IsCorrect != nil {
		correct = sql.NullBool{Bool: *resp.IsCorrect, Valid: true}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO responses (id, quiz_id, session_id, user_id, display_name, answer_index, is_correct, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		resp.ID, resp.QuizID, resp.SessionID, resp.UserID, resp.DisplayName,
		resp.AnswerIndex, correct, resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

func (s *Store) CountQuizzes(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quizzes WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count quizzes: %w", err)
	}
	return n, nil
}

func (s *Store) ListResponses(ctx context.Context, sessionID string) ([]domain.Response, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, session_id, user_id, display_name, answer_index, is_correct, created_at
		FROM responses WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	responses := make([]domain.Response, 0)
	for rows.Next() {
		var resp domain.Response
		var name sql.NullString
		var correct sql.NullBool
		if err := rows.Scan(&resp.ID, &resp.QuizID, &resp.SessionID, &resp.UserID,
			&name, &resp.AnswerIndex, &correct, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		resp.DisplayName = name.String
		if correct.Valid {
			v := correct.Bool
			resp.IsCorrect = &v
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

func (s *Store) RoomsByOwner(ctx context.Context, userID string, creatorKeys []string) ([]string, error) {
	if creatorKeys == nil {
		creatorKeys = []string{}
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM rooms
		WHERE (creator_user_id = $1 AND $1 <> '') OR creator_key = ANY($2)
		ORDER BY created_at`, userID, creatorKeys)
	if err != nil {
		return nil, fmt.Errorf("rooms by owner: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListSessions(ctx context.Context, roomID string, limit int) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, started_at, ended_at
		FROM sessions WHERE room_id = $1
		ORDER BY started_at DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var sess domain.Session
		var ended sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.RoomID, &sess.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			v := ended.Time
			sess.EndedAt = &v
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
