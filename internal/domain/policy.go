package domain

// PolicyUnavailable marks a policy fetch that did not produce usable content.
// It is stored in place of policy text and must never be shown to a user as
// if it were policy content.
const PolicyUnavailable = "Unable to retrieve policy."

// MaxPolicyRunes bounds the length of sanitized policy text.
const MaxPolicyRunes = 5000

// PolicyUsable reports whether text is real policy content rather than the
// empty "not yet fetched" value or the failure marker.
func PolicyUsable(text string) bool {
	return text != "" && text != PolicyUnavailable
}
