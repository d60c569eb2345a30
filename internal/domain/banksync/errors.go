package banksync

// LoginRequiredError signals that the item's credential is stale and needs
// an out-of-band re-link. The item is already transitioned to
// LOGIN_REQUIRED with the provider message before this error is returned.
type LoginRequiredError struct {
	Message string
}

func (e *LoginRequiredError) Error() string {
	return "aggregator requires re-authentication: " + e.Message
}

// AggregatorError wraps any other provider-side failure. The item is
// already transitioned to ERROR with the provider message before this
// error is returned.
type AggregatorError struct {
	Message string
}

func (e *AggregatorError) Error() string {
	return "aggregator failure: " + e.Message
}
