package entity

// FailedURL is one (url, reason) pair collected during a run.
type FailedURL struct {
	URL    string
	Reason string
}
