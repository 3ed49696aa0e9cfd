package domain

// Task statuses.
const (
	TaskPending    = "PENDING"
	TaskInProgress = "IN_PROGRESS"
	TaskCompleted  = "COMPLETED"
	TaskCancelled  = "CANCELLED"
	TaskOverdue    = "OVERDUE"
)

// Task types.
const (
	TaskTypeFollowUp = "FOLLOW_UP"
	TaskTypeReminder = "REMINDER"
	TaskTypeCallback = "CALLBACK"
	TaskTypeOther    = "OTHER"
)

// Task priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// taskTransitions lists the manual transitions allowed from each status.
// OVERDUE is entered only by the overdue sweeper, and OVERDUE -> PENDING only
// through a delay that moves the due time into the future.
var taskTransitions = map[string][]string{
	TaskPending:    {TaskInProgress, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskCancelled},
	TaskOverdue:    {TaskCancelled},
}

// CanTransition reports whether a task may move from one status to another
// via an explicit status update.
func CanTransition(from, to string) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsOpenTaskStatus reports whether a task in this status still needs work.
func IsOpenTaskStatus(s string) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskOverdue:
		return true
	}
	return false
}

// IsValidTaskType reports whether t is a known task type.
func IsValidTaskType(t string) bool {
	switch t {
	case TaskTypeFollowUp, TaskTypeReminder, TaskTypeCallback, TaskTypeOther:
		return true
	}
	return false
}

// IsValidPriority reports whether p is a known task priority.
func IsValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
