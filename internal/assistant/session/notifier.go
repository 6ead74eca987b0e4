package session

import (
	"github.com/sirupsen/logrus"
)

// MutationNotifier decides when a tool call should trigger UI-side data
// revalidation. It fires the injected callback exactly once per applied
// tool call whose name is on the allow-list and whose execution
// succeeded. Read-only tools and failed mutations never fire: both would
// cause pointless or misleading refreshes.
type MutationNotifier struct {
	allowed  map[string]struct{}
	onChange func()
	log      *logrus.Entry
}

// NewMutationNotifier creates a notifier for the given mutating tool
// names. The allow-list is explicit configuration, not a package-level
// constant, so tests can substitute their own.
func NewMutationNotifier(mutatingTools []string, onChange func(), log *logrus.Entry) *MutationNotifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	allowed := make(map[string]struct{}, len(mutatingTools))
	for _, name := range mutatingTools {
		allowed[name] = struct{}{}
	}
	return &MutationNotifier{
		allowed:  allowed,
		onChange: onChange,
		log:      log,
	}
}

// Observe inspects one applied tool call and fires the callback when it
// qualifies.
func (n *MutationNotifier) Observe(call ToolCall) {
	if n.onChange == nil {
		return
	}
	if _, ok := n.allowed[call.Name]; !ok {
		return
	}
	if call.Status == ToolError {
		n.log.WithFields(logrus.Fields{
			"tool":  call.Name,
			"error": call.Error,
		}).Debug("mutating tool failed, skipping change notification")
		return
	}
	n.onChange()
}
