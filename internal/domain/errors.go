package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStorage           = errors.New("storage error")
)

// ValidationError reports bad caller input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransitionError is a rejected status change.
type TransitionError struct {
	From   int64
	To     int64
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %d -> %d: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// StorageError wraps a backing-store or file-storage failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}
