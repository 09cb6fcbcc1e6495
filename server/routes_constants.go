package server

// Route path constants
const (
	// RouteStore receives the provider redirect and answers the client poll.
	// The verb decides which.
	RouteStore = "/api/store"
)
