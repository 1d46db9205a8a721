package core

// State is the client-wide authentication state
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// StateChange describes a transition of the authentication state
type StateChange struct {
	From    State  `json:"from"`
	To      State  `json:"to"`
	Address string `json:"address,omitempty"`
}
