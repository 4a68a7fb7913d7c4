package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidRange = errors.New("view length exceeds window capacity")
	ErrUnauthorized = errors.New("unauthorized")
	ErrHalted       = errors.New("trading halted")
	ErrContextDone  = errors.New("context cancelled")
)
