package usecase

import "strings"

// Reply classifies a user's response to a pending write confirmation.
type Reply int

const (
	// ReplyAmbiguous means the message is neither a clear yes nor a clear no.
	ReplyAmbiguous Reply = iota
	// ReplyAffirmative means the user confirmed the pending action.
	ReplyAffirmative
	// ReplyNegative means the user rejected the pending action.
	ReplyNegative
)

// Exact phrases accepted as confirmation or rejection. Membership is checked
// after trimming and lowercasing; anything else is ambiguous and the pending
// action stays armed.
var (
	affirmativeReplies = map[string]struct{}{
		"yes": {}, "y": {}, "confirm": {}, "ok": {}, "proceed": {},
		"do it": {}, "go ahead": {}, "sure": {}, "yep": {}, "yeah": {},
	}
	negativeReplies = map[string]struct{}{
		"no": {}, "n": {}, "cancel": {}, "stop": {}, "abort": {},
		"never mind": {}, "nope": {}, "nah": {},
	}
)

// ClassifyReply decides whether a message confirms, rejects, or is unrelated
// to a pending action. Only exact phrases match: "yes please do that" is
// ambiguous and handled as a normal chat turn.
func ClassifyReply(message string) Reply {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if _, ok := affirmativeReplies[normalized]; ok {
		return ReplyAffirmative
	}
	if _, ok := negativeReplies[normalized]; ok {
		return ReplyNegative
	}
	return ReplyAmbiguous
}
