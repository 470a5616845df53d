package shiftsim

import "time"

// HTTP status code constants.
const (
	StatusOK       = 200
	StatusCreated  = 201
	StatusConflict = 409
)

// Runner configuration constants.
const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetries       = 3
	PercentageMultiplier = 100
	topEntries           = 10
	earningsTolerance    = 0.01
)
