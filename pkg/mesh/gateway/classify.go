package gateway

// Success reports whether an HTTP status code counts as successful
// delivery for a gateway relay (spec.md §4.8 step 4): only 200, 201,
// 202 and 204. Notably 203 is excluded — see Retryable's doc comment.
func Success(httpStatus int) bool {
	switch httpStatus {
	case 200, 201, 202, 204:
		return true
	default:
		return false
	}
}

// Retryable reports whether a relay attempt should be retried: 5xx,
// 429, HTTP 203, or a network-level error (httpStatus < 0, by
// convention used to carry the error case here). 203 ("Non-Authoritative
// Information") is treated as retryable-failure rather than success: a
// transparent caching proxy can return 203 without the origin ever
// having seen the request, so it does not prove end-to-end delivery
// (spec.md §4.8 step 4's explicit correctness stance).
func Retryable(httpStatus int) bool {
	if httpStatus < 0 {
		return true
	}
	if httpStatus == 429 || httpStatus == 203 {
		return true
	}
	return httpStatus >= 500 && httpStatus < 600
}
