package dto

// FeedUpdate carries the partial fields the engine may write back to a feed.
// Only non-nil fields are applied; ClearError wipes the error column
// explicitly, since a nil Error pointer means "leave untouched".
type FeedUpdate struct {
	Active     *bool
	Error      *string
	ClearError bool
}

// IsZero reports whether the update would change nothing
func (u FeedUpdate) IsZero() bool {
	return u.Active == nil && u.Error == nil && !u.ClearError
}
