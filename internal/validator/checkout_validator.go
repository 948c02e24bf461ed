package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"marketplace/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// 入力が不正
var ErrInvalidInput = errors.New("invalid input")

type checkoutValidator struct {
	v *validator.Validate
}

// Usecaseは interface を依存注入
func NewCheckoutValidator() usecase.CheckoutValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// エラーのフィールド名はJSONの名前で返す
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// 金額はgt/ltで比べられるようにfloatとして見る
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch d := field.Interface().(type) {
		case decimal.Decimal:
			f, _ := d.Float64()
			return f
		case decimal.NullDecimal:
			if !d.Valid {
				return nil
			}
			f, _ := d.Decimal.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{}, decimal.NullDecimal{})

	return &checkoutValidator{v: v}
}

func (c *checkoutValidator) ValidateCheckout(in usecase.CheckoutInput) error {
	return c.check(in)
}

func (c *checkoutValidator) ValidateInitializePayment(in usecase.InitializePaymentInput) error {
	return c.check(in)
}

func (c *checkoutValidator) ValidateBankDetails(in usecase.BankDetailsInput) error {
	return c.check(in)
}

func (c *checkoutValidator) check(in any) error {
	err := c.v.Struct(in)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return ErrInvalidInput
	}

	//最初の1件だけ返す
	fe := ves[0]
	return fmt.Errorf("%w: %s", ErrInvalidInput, describe(fe))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "numeric":
		return field + " must contain digits only"
	case "min", "max", "gt", "gte", "lt", "lte":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return field + " is invalid"
}
