package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusAssigned: true, StatusCancelled: true},
	StatusAssigned:   {StatusInProgress: true, StatusPending: true, StatusCompleted: true, StatusCancelled: true},
	StatusInProgress: {StatusPending: true, StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Assigned reports whether a staff member is working the order.
func (s Status) Assigned() bool {
	return s == StatusAssigned || s == StatusInProgress
}
