package domain

import "errors"

var (
	// ErrEmptyBank is returned when no questions are available; callers skip
	// the emission cycle rather than crash.
	ErrEmptyBank = errors.New("question bank is empty")
	// ErrQuestionNotFound indicates a question ID is not in the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuestion indicates a question violates the bank invariants.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrRoundNotFound is returned when an answer references an unknown round.
	ErrRoundNotFound = errors.New("round not found")
	// ErrParticipantNotFound is returned when a user acts before registering.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrVersionConflict signals a lost optimistic-concurrency race; the
	// caller must reload the record before retrying, never resave stale data.
	ErrVersionConflict = errors.New("participant version conflict")
	// ErrNotAuthorized is returned for admin commands from non-admins.
	ErrNotAuthorized = errors.New("not authorized")
)

// StorageError wraps a persistence failure. In-memory state is not
// authoritative until the save behind it succeeds.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }
