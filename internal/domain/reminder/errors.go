package reminder

import "errors"

// ErrInvalidReminder is returned for entries with an unknown kind or no ref.
var ErrInvalidReminder = errors.New("invalid reminder")
