package core

// EditSession tracks which rules were created during the current
// editing session and have never been saved. Cancelling the edit of
// such a rule removes it instead of leaving a half-initialized entry
// behind; cancelling a pre-existing rule leaves the list alone. This
// is the one piece of cross-cutting state the rule editor needs, and
// it is discarded when the editing session ends.
type EditSession struct {
	fresh map[string]bool
}

func NewEditSession() *EditSession {
	return &EditSession{fresh: make(map[string]bool)}
}

// MarkCreated records that the rule was added during this session.
func (s *EditSession) MarkCreated(id string) {
	s.fresh[id] = true
}

// MarkSaved records a successful save; from here on cancelling the
// rule reverts instead of deleting.
func (s *EditSession) MarkSaved(id string) {
	delete(s.fresh, id)
}

// IsFresh reports whether the rule was created this session and has
// not been saved yet.
func (s *EditSession) IsFresh(id string) bool {
	return s.fresh[id]
}

// Cancel rolls back the edit of the given rule. A freshly created,
// never-saved rule is removed from the list; anything else is a no-op.
// The second return reports whether the rule was removed.
func (s *EditSession) Cancel(list RuleList, id string) (RuleList, bool) {
	if !s.fresh[id] {
		return list, false
	}
	delete(s.fresh, id)
	out, err := list.Delete(id)
	if err != nil {
		// The rule was already gone (or reserved, which a fresh rule
		// can never be); nothing to roll back.
		return list, false
	}
	return out, true
}
