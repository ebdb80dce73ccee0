package domain

import "time"

type Comment struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	AdID      int64     `json:"ad_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Comment) OwnerID() int64 { return c.AuthorID }

// CommentFilter scopes comments to their parent ad.
type CommentFilter struct {
	AdID int64
}

type CommentInput struct {
	Text *string `json:"text"`
}

func (in CommentInput) Apply(c *Comment, partial bool) {
	if in.Text != nil {
		c.Text = *in.Text
	} else if !partial {
		c.Text = ""
	}
}
