package hub

import "errors"

var (
	ErrQueueFull  = errors.New("hub event queue is full")
	ErrHubStopped = errors.New("hub is stopped")
)
