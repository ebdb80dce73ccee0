package handler

import (
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/service"
)

type adListItem struct {
	PK          int64   `json:"pk"`
	Image       *string `json:"image"`
	Title       string  `json:"title"`
	Price       string  `json:"price"`
	Description string  `json:"description"`
}

type adDetail struct {
	adListItem
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type commentResponse struct {
	PK        int64     `json:"pk"`
	Text      string    `json:"text"`
	AuthorID  int64     `json:"author_id"`
	AdID      int64     `json:"ad_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type pageResponse[T any] struct {
	Count       int  `json:"count"`
	CurrentPage int  `json:"current_page"`
	NextPage    *int `json:"next_page"`
	PrevPage    *int `json:"prev_page"`
	TotalPages  int  `json:"total_pages"`
	Results     []T  `json:"results"`
}

func newAdListItem(ad *domain.Ad) adListItem {
	item := adListItem{
		PK:          ad.ID,
		Title:       ad.Title,
		Price:       ad.Price.StringFixed(2),
		Description: ad.Description,
	}
	if ad.Image != "" {
		image := ad.Image
		item.Image = &image
	}
	return item
}

func newAdDetail(ad *domain.Ad) adDetail {
	return adDetail{
		adListItem: newAdListItem(ad),
		AuthorID:   ad.AuthorID,
		CreatedAt:  ad.CreatedAt,
		UpdatedAt:  ad.UpdatedAt,
	}
}

func newCommentResponse(c *domain.Comment) commentResponse {
	return commentResponse{
		PK:        c.ID,
		Text:      c.Text,
		AuthorID:  c.AuthorID,
		AdID:      c.AdID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func optionalPage(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func newAdPage(page *service.Page[domain.Ad]) pageResponse[adListItem] {
	results := make([]adListItem, len(page.Items))
	for i, ad := range page.Items {
		results[i] = newAdListItem(ad)
	}
	return pageResponse[adListItem]{
		Count:       page.Count,
		CurrentPage: page.CurrentPage,
		NextPage:    optionalPage(page.NextPage),
		PrevPage:    optionalPage(page.PrevPage),
		TotalPages:  page.TotalPages,
		Results:     results,
	}
}
