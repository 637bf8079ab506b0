package database

import "errors"

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// ErrInvalidTransition is returned when a job status update would move backwards
var ErrInvalidTransition = errors.New("invalid job status transition")
