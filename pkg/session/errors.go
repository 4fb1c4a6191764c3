package session

import "errors"

var (
	ErrNotOpened      = errors.New("device not opened")
	ErrAlreadyOpened  = errors.New("device already opened")
	ErrWorkerAlive    = errors.New("previous device worker still running")
	ErrBusy           = errors.New("session busy")
	ErrNotLocked      = errors.New("device not locked")
	ErrTargetNotReady = errors.New("display target not ready")
	ErrUnsupported    = errors.New("unsupported setting")
	ErrTimeout        = errors.New("operation timed out")
	ErrQueueFull      = errors.New("task queue full")
	ErrNoOutput       = errors.New("no output file")
	ErrCaptureFailed  = errors.New("capture produced no data")
)
