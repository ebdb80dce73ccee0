package domain

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

// Prices are stored as DECIMAL(12,2).
const (
	PriceDecimalPlaces = 2
	PriceDigits        = 12
)

var maxPrice = decimal.New(1, PriceDigits-PriceDecimalPlaces)

// Validate checks an ad payload. A partial payload only validates the fields it carries.
func (in AdInput) Validate(partial bool) error {
	return asValidationError(validation.ValidateStruct(&in,
		validation.Field(&in.Title,
			validation.When(!partial, validation.Required),
			validation.NilOrNotEmpty,
			validation.Length(1, MaxAdTitleLength),
		),
		validation.Field(&in.Price,
			validation.When(!partial, validation.Required),
			validation.By(storablePrice),
		),
		validation.Field(&in.Description, validation.Length(0, MaxAdDescriptionLength)),
		validation.Field(&in.Image, validation.Length(0, MaxImageURLLength), is.URL),
	))
}

func (in CommentInput) Validate(partial bool) error {
	return asValidationError(validation.ValidateStruct(&in,
		validation.Field(&in.Text,
			validation.When(!partial, validation.Required),
			validation.NilOrNotEmpty,
			validation.Length(1, MaxCommentTextLength),
		),
	))
}

// storablePrice accepts prices the price column holds without rounding.
func storablePrice(value interface{}) error {
	price, _ := value.(*decimal.Decimal)
	if price == nil {
		return nil
	}
	switch {
	case price.IsNegative():
		return errors.New("must be no less than 0")
	case !price.Equal(price.Truncate(PriceDecimalPlaces)):
		return fmt.Errorf("must have at most %d decimal places", PriceDecimalPlaces)
	case price.GreaterThanOrEqual(maxPrice):
		return fmt.Errorf("must be less than %s", maxPrice.String())
	}
	return nil
}

func asValidationError(err error) error {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}

	fields := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		fields[field] = fieldErr.Error()
	}
	return &ValidationError{Fields: fields}
}
