package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxAdTitleLength       = 200
	MaxAdDescriptionLength = 1000
	MaxImageURLLength      = 500
	MaxCommentTextLength   = 1000
)

type Ad struct {
	ID          int64           `json:"id"`
	AuthorID    int64           `json:"author_id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OwnerID makes an Ad usable as the target of an ownership check.
func (a *Ad) OwnerID() int64 { return a.AuthorID }

// AdFilter narrows ad listings. Zero values mean "no constraint".
type AdFilter struct {
	Title    string
	PriceMin *decimal.Decimal
	PriceMax *decimal.Decimal
	AuthorID int64
}

// AdInput is the client payload for create, update and partial update.
// Nil fields are absent from the request.
type AdInput struct {
	Title       *string          `json:"title"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
	Image       *string          `json:"image"`
}

// Apply copies the supplied fields onto ad. With partial unset, absent fields are cleared.
func (in AdInput) Apply(ad *Ad, partial bool) {
	if in.Title != nil {
		ad.Title = *in.Title
	} else if !partial {
		ad.Title = ""
	}
	if in.Price != nil {
		ad.Price = *in.Price
	} else if !partial {
		ad.Price = decimal.Zero
	}
	if in.Description != nil {
		ad.Description = *in.Description
	} else if !partial {
		ad.Description = ""
	}
	if in.Image != nil {
		ad.Image = *in.Image
	} else if !partial {
		ad.Image = ""
	}
}
