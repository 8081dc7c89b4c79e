package handler

const (
	errInternalServer   = "Internal server error"
	errScheduleNotFound = "Schedule not found"
	errDraining         = "Scheduler is shutting down"
	errInvalidLimit     = "limit must be between 1 and 500"
)
