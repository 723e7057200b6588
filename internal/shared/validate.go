package shared

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate        = newValidator()
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("lbuser", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("failed to register username validation: %v", err))
	}
	return v
}

// RequestInput holds the user-supplied parameters of a results request.
type RequestInput struct {
	Username string `validate:"required,max=64,lbuser"`
	Region   string `validate:"required,iso3166_1_alpha2"`
}

// ValidateRequest normalizes and checks a username and region code.
//
// The returned region is upper-cased. Failures wrap [ErrInvalidInput] and name the offending field.
func ValidateRequest(username, region string) (RequestInput, error) {
	in := RequestInput{
		Username: strings.TrimSpace(username),
		Region:   strings.ToUpper(strings.TrimSpace(region)),
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return in, fmt.Errorf("%w: %s failed %q", ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
		}
		return in, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return in, nil
}

// ValidateUsername checks a username on its own, for commands that span every region.
func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if err := validate.Var(username, "required,max=64,lbuser"); err != nil {
		return username, fmt.Errorf("%w: username failed validation: %v", ErrInvalidInput, err)
	}
	return username, nil
}
