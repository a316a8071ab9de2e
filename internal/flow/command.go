package flow

import "errors"

// ErrUnknownCommand is returned by controllers for command names they do not
// handle.
var ErrUnknownCommand = errors.New("flow: unknown command")

// Command is one user interaction delivered to a controller, such as an
// edited field or a pressed button.
type Command struct {
	Name  string `json:"name" validate:"required,max=32"`
	Value string `json:"value" validate:"max=256"`
	Index int    `json:"index" validate:"gte=0,lte=16"`
}
