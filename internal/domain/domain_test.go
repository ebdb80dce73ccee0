package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func pricePtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestAdInputValidate(t *testing.T) {
	cases := []struct {
		name       string
		in         AdInput
		partial    bool
		wantFields []string
	}{
		{"valid full", AdInput{Title: strPtr("Bike"), Price: pricePtr("150.50")}, false, nil},
		{"missing title and price", AdInput{Description: strPtr("nice")}, false, []string{"title", "price"}},
		{"blank title", AdInput{Title: strPtr(""), Price: pricePtr("1")}, false, []string{"title"}},
		{"negative price", AdInput{Title: strPtr("Bike"), Price: pricePtr("-1")}, false, []string{"price"}},
		{"zero price is fine", AdInput{Title: strPtr("Free"), Price: pricePtr("0")}, false, nil},
		{"long title", AdInput{Title: strPtr(strings.Repeat("a", MaxAdTitleLength+1)), Price: pricePtr("1")}, false, []string{"title"}},
		{"partial empty payload", AdInput{}, true, nil},
		{"partial blank title", AdInput{Title: strPtr("")}, true, []string{"title"}},
		{"partial long description", AdInput{Description: strPtr(strings.Repeat("d", MaxAdDescriptionLength+1))}, true, []string{"description"}},
		{"price with three decimals", AdInput{Title: strPtr("Bike"), Price: pricePtr("1.005")}, false, []string{"price"}},
		{"trailing zeros are fine", AdInput{Title: strPtr("Bike"), Price: pricePtr("1.500")}, false, nil},
		{"largest price", AdInput{Title: strPtr("Bike"), Price: pricePtr("9999999999.99")}, false, nil},
		{"price out of range", AdInput{Title: strPtr("Bike"), Price: pricePtr("10000000000")}, false, []string{"price"}},
		{"price far out of range", AdInput{Title: strPtr("Bike"), Price: pricePtr("123456789012345.99")}, false, []string{"price"}},
		{"partial precise price", AdInput{Price: pricePtr("0.001")}, true, []string{"price"}},
		{"image url", AdInput{Title: strPtr("Bike"), Price: pricePtr("1"), Image: strPtr("https://cdn.example/ads/1/a.png")}, false, nil},
		{"cleared image", AdInput{Image: strPtr("")}, true, nil},
		{"image not a url", AdInput{Image: strPtr("not a url")}, true, []string{"image"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate(tc.partial)
			if len(tc.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected errors.Is(err, ErrValidation)")
			}
			if len(verr.Fields) != len(tc.wantFields) {
				t.Fatalf("expected fields %v, got %v", tc.wantFields, verr.Fields)
			}
			for _, f := range tc.wantFields {
				if _, ok := verr.Fields[f]; !ok {
					t.Fatalf("expected error on %q, got %v", f, verr.Fields)
				}
			}
		})
	}
}

func TestCommentInputValidate(t *testing.T) {
	if err := (CommentInput{Text: strPtr("hello")}).Validate(false); err != nil {
		t.Fatalf("expected valid comment, got %v", err)
	}
	if err := (CommentInput{}).Validate(false); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected missing text to fail, got %v", err)
	}
	if err := (CommentInput{}).Validate(true); err != nil {
		t.Fatalf("expected empty partial payload to pass, got %v", err)
	}
}

func TestAdInputApply(t *testing.T) {
	ad := Ad{Title: "Old", Price: decimal.NewFromInt(10), Description: "keep", Image: "http://img"}

	AdInput{Title: strPtr("New")}.Apply(&ad, true)
	if ad.Title != "New" || ad.Description != "keep" || !ad.Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("partial apply changed absent fields: %+v", ad)
	}

	AdInput{Title: strPtr("Full"), Price: pricePtr("3")}.Apply(&ad, false)
	if ad.Description != "" || ad.Image != "" {
		t.Fatalf("full apply should clear absent optional fields: %+v", ad)
	}
}

func TestCallerRoles(t *testing.T) {
	cases := []struct {
		caller        Caller
		authenticated bool
		admin         bool
		executor      bool
	}{
		{Anonymous, false, false, false},
		{Caller{ID: 1, Role: RoleUser}, true, false, false},
		{Caller{ID: 2, Role: RoleAdmin}, true, true, false},
		{Caller{ID: 3, Role: RoleExecutor}, true, false, true},
		{Caller{Role: RoleAdmin}, false, false, false},
	}

	for _, tc := range cases {
		if got := tc.caller.IsAuthenticated(); got != tc.authenticated {
			t.Fatalf("%+v: IsAuthenticated=%v", tc.caller, got)
		}
		if got := tc.caller.IsAdmin(); got != tc.admin {
			t.Fatalf("%+v: IsAdmin=%v", tc.caller, got)
		}
		if got := tc.caller.IsExecutor(); got != tc.executor {
			t.Fatalf("%+v: IsExecutor=%v", tc.caller, got)
		}
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "cannot be blank", "price": "cannot be blank"}}
	want := "validation failed: price: cannot be blank; title: cannot be blank"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
