package storage

import "errors"

// ErrRunNotFound is returned when no run exists with the requested ID.
var ErrRunNotFound = errors.New("run not found")

// ErrRunFinished is returned when a completed or failed run is modified.
var ErrRunFinished = errors.New("run already finished")
