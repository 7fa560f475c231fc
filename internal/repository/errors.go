package repository

import "errors"

var (
	// ErrSessionState is returned when a browser operation is attempted in the wrong lifecycle state.
	ErrSessionState = errors.New("browser session is not ready")
	// ErrNavigationFailed covers network errors and navigations that produced no document.
	ErrNavigationFailed = errors.New("navigation failed")
	// ErrCrawlTimeout is returned when a navigation exceeds its timeout.
	ErrCrawlTimeout = errors.New("navigation timed out")
	// ErrContentTooShort marks responses too small to be a real page.
	ErrContentTooShort = errors.New("empty or too short content")
	// ErrInvalidStartURL is returned for a start URL that is not absolute http(s).
	ErrInvalidStartURL = errors.New("invalid start URL")
)
