package activity

// DefaultListLimit caps unbounded listings.
const DefaultListLimit = 50

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ProjectID    string
	FrameID      *string
	ActivityType *ActivityType
	Limit        int
	Offset       int
}
