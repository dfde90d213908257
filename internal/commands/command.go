package commands

import "github.com/google/uuid"

// Command is a validated request issued by an authenticated actor.
type Command interface {
	CommandType() string
	Validate() error
	ActorID() uuid.UUID
}
