package dto

// CreateCommentRequest posts a comment or reply on a tracker.
type CreateCommentRequest struct {
	TrackerID       string  `json:"tracker_id" validate:"required,uuid4"`
	ParentCommentID *string `json:"parent_comment_id,omitempty" validate:"omitempty,uuid4"`
	Body            string  `json:"body" validate:"required,min=1,max=10000"`
}

// CommentThread is one comment plus its nested replies, reconstructed
// from the flat table at read time.
type CommentThread struct {
	CommentID        string          `json:"comment_id"`
	UserID           string          `json:"user_id"`
	Body             string          `json:"body"`
	IsResolved       bool            `json:"is_resolved"`
	ResolvedByUserID *string         `json:"resolved_by_user_id,omitempty"`
	IsDeleted        bool            `json:"is_deleted"`
	CreatedAt        string          `json:"created_at"`
	Replies          []CommentThread `json:"replies,omitempty"`
}
