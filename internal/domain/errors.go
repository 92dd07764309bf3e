package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room id is unknown to the store.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when creating a room whose id is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrNotCreator is returned when a connection other than the bound
	// creator attempts a creator-only operation.
	ErrNotCreator = errors.New("requester is not the room creator")
	// ErrQuizAlreadyActive is returned when a quiz is created while another
	// quiz is still running.
	ErrQuizAlreadyActive = errors.New("a quiz is already active")
	// ErrNoOpenSession indicates a room has no session with a null end timestamp.
	ErrNoOpenSession = errors.New("no open session for room")
)
