package entity

import "errors"

var (
	ErrStateConflict     = errors.New("record state has been changed concurrently")
	ErrInvalidTransition = errors.New("invalid record state transition")
	ErrInvalidMutation   = errors.New("invalid record mutation")
	ErrUnexpectedKind    = errors.New("unexpected record kind")
	ErrNotRequeueable    = errors.New("only failed records can be re-queued")
)
