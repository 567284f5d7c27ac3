package lifecycle

import (
	"strings"
	"time"
)

// Activity is the natural, override-free verdict for a channel.
type Activity int

const (
	Stale Activity = iota
	Fresh
)

func (a Activity) String() string {
	if a == Fresh {
		return "fresh"
	}
	return "stale"
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Activity Activity
	// Latest is the most recent qualifying message, nil when none qualified.
	Latest *Message
}

// Effective returns the time a message last counted as activity: its edit time if edited.
func Effective(m Message) time.Time {
	if m.EditedTimestamp != nil && !m.EditedTimestamp.IsZero() {
		return *m.EditedTimestamp
	}
	return m.Timestamp
}

// LatestQualifying returns the first non-webhook message of a newest-first history.
func LatestQualifying(history []Message) (Message, bool) {
	for _, m := range history {
		if !m.FromWebhook {
			return m, true
		}
	}
	return Message{}, false
}

// Evaluate classifies a channel from its newest-first history. Without a qualifying message the
// channel is stale; otherwise it is fresh while its latest activity is younger than staleAfter.
func Evaluate(history []Message, now time.Time, staleAfter time.Duration) Evaluation {
	m, ok := LatestQualifying(history)
	if !ok {
		return Evaluation{Activity: Stale}
	}
	ev := Evaluation{Activity: Stale, Latest: &m}
	if now.Sub(Effective(m)) < staleAfter {
		ev.Activity = Fresh
	}
	return ev
}

// IsTrigger reports whether the message is the archive command.
func IsTrigger(m Message, trigger string) bool {
	return trigger != "" && strings.TrimSpace(m.Content) == trigger
}
