package payment

import "strings"

const GenericFailure = "Payment failed. Please check your card information and try again."

// Order matters: the first matching substring wins.
var failureMessages = []struct {
	match   string
	message string
}{
	{"insufficient funds", "Your card has insufficient funds. Please try a different payment method."},
	{"expired", "Your card has expired. Please use a different card."},
	{"declined", "Your card was declined. Please try a different payment method."},
	{"invalid", "Invalid card information. Please check your card details."},
	{"authentication", "Payment authentication failed. Please try again."},
	{"network", "Network error. Please check your connection and try again."},
}

// ClassifyError maps a raw processor or backend error string to the
// user-facing text shown on checkout. Raw text is never passed through.
func ClassifyError(raw string) string {
	msg := strings.ToLower(raw)
	for _, f := range failureMessages {
		if strings.Contains(msg, f.match) {
			return f.message
		}
	}
	return GenericFailure
}
