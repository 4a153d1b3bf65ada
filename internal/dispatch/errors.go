package dispatch

import "errors"

var (
	// ErrTerminalOffline rejects a requires-online command before any
	// network traffic happens.
	ErrTerminalOffline = errors.New("terminal is offline")

	// ErrCommandInFlight rejects a duplicate dispatch while the same
	// command type is pending or awaiting confirmation on the terminal.
	ErrCommandInFlight = errors.New("command already in flight for terminal")

	// ErrConfirmationRequired asks the caller to confirm (or cancel) the
	// staged dispatch before anything is sent.
	ErrConfirmationRequired = errors.New("command requires confirmation")

	// ErrUnknownCommand means the type is outside the catalog.
	ErrUnknownCommand = errors.New("unknown command type")

	// ErrNothingToConfirm means ConfirmDispatch/CancelDispatch was called
	// without a staged dispatch.
	ErrNothingToConfirm = errors.New("no dispatch awaiting confirmation")
)
