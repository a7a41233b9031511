package checkout

import (
	"hashrent-backend/internal/btcaddr"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("btcaddress", func(fl validator.FieldLevel) bool {
		return btcaddr.Valid(fl.Field().String())
	})
	return v
}

func validatePayoutAddress(address string) error {
	return validate.Var(address, "required,btcaddress")
}
