package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidRequest marks malformed or contradictory client input.
	// The HTTP layer maps it to a 400 response.
	ErrInvalidRequest = goerr.New("invalid request")

	// ErrChunkNotFound marks a chunk ID that is absent from the parsing
	// service's current chunk set.
	ErrChunkNotFound = goerr.New("chunk not found")
)
