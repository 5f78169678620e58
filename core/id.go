package core

import "github.com/google/uuid"

// NewID generates a unique identifier used for call correlation and for
// synthesizing tool-call ids when a provider omits them.
func NewID() string { return uuid.NewString() }
