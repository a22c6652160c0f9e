package conversation

// State is a conversation turn state.
type State string

const (
	Greeting   State = "greeting"
	Speaking   State = "speaking"
	Listening  State = "listening"
	Processing State = "processing"
	Error      State = "error"
)

var validTransitions = map[State][]State{
	Greeting:   {Speaking, Listening, Error},
	Speaking:   {Listening, Error, Processing},
	Listening:  {Processing, Speaking, Error},
	Processing: {Speaking, Listening, Error},
	Error:      {Listening, Speaking, Greeting},
}

// States lists every state in declaration order.
func States() []State {
	return []State{Greeting, Speaking, Listening, Processing, Error}
}

// IsValid reports whether from → to is an allowed transition.
func IsValid(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
