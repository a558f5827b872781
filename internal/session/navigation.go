package session

// Navigator tracks the current question index. Out of range moves are
// ignored and reported as false.
type Navigator struct {
	store *AnswerStore
	index int
}

func NewNavigator(store *AnswerStore) *Navigator {
	return &Navigator{store: store}
}

func (n *Navigator) CurrentIndex() int {
	return n.index
}

func (n *Navigator) GoNext() bool {
	return n.GoTo(n.index + 1)
}

func (n *Navigator) GoPrevious() bool {
	return n.GoTo(n.index - 1)
}

func (n *Navigator) GoTo(index int) bool {
	if index < 0 || index >= n.store.Len() || index == n.index {
		return false
	}
	n.index = index
	return true
}

// IsAnswered reports progress for the question at index without exposing
// the answer itself.
func (n *Navigator) IsAnswered(index int) bool {
	questions := n.store.Questions()
	if index < 0 || index >= len(questions) {
		return false
	}
	return n.store.IsAnswered(questions[index].ID)
}

// AnsweredFlags returns IsAnswered for every index.
func (n *Navigator) AnsweredFlags() []bool {
	flags := make([]bool, n.store.Len())
	for i := range flags {
		flags[i] = n.IsAnswered(i)
	}
	return flags
}

func (n *Navigator) Reset() {
	n.index = 0
}
