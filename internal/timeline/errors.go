package timeline

import "errors"

// Timeline errors.
var (
	// ErrRemoteEventNotInTimeline is returned by FetchDetailsForEvent when
	// no item in the timeline references the requested event as a reply
	// target. Caller error, never retried automatically.
	ErrRemoteEventNotInTimeline = errors.New("remote event not in timeline")

	// ErrSubscriptionClosed is returned by Subscription.Next after Close.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrNoFetcher is returned when detail fetching is requested on a
	// timeline constructed without a fetcher.
	ErrNoFetcher = errors.New("no event fetcher configured")
)
