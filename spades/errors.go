package spades

import "errors"

var (
	ErrOutOfTurn      = errors.New("action out of turn")
	ErrWrongPhase     = errors.New("wrong phase for action")
	ErrInvalidValue   = errors.New("invalid value")
	ErrIllegalPlay    = errors.New("illegal play")
	ErrSeatTaken      = errors.New("seat already taken")
	ErrSeatNotFound   = errors.New("seat not found")
	ErrAlreadyStarted = errors.New("game already started")
	ErrAlreadyBid     = errors.New("seat already bid")
	ErrGameFinished   = errors.New("game already finished")
)

type InvalidStateError string

func (e InvalidStateError) Error() string { return "invalid state: " + string(e) }

func ErrInvalidState(msg string) error { return InvalidStateError(msg) }
