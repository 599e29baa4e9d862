package apihttp

import (
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// PageQuery is the pagination query string. Page is capped well below the
// point where page*page_size would overflow.
type PageQuery struct {
	Page     int `query:"page" validate:"min=1,max=1000000"`
	PageSize int `query:"page_size" validate:"min=1,max=100"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("query"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// parsePageQuery reads page and page_size, applying defaults for absent
// values. Every problem is reported at once as a validation error.
func parsePageQuery(v *validator.Validate, q url.Values) (PageQuery, error) {
	pq := PageQuery{Page: defaultPage, PageSize: defaultPageSize}

	var violations []apierr.Violation
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"page", &pq.Page},
		{"page_size", &pq.PageSize},
	} {
		raw, ok := q[f.name]
		if !ok || len(raw) == 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw[0]))
		if err != nil {
			violations = append(violations, apierr.Violation{
				Loc:  []string{"query", f.name},
				Msg:  "Input should be a valid integer, unable to parse string as an integer",
				Type: "int_parsing",
			})
			continue
		}
		*f.dst = n
	}
	if len(violations) > 0 {
		return pq, apierr.Validation(violations...)
	}

	if err := v.Struct(pq); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return pq, apierr.Unexpected(err)
		}
		for _, fe := range verrs {
			violations = append(violations, violationFor(fe))
		}
		return pq, apierr.Validation(violations...)
	}
	return pq, nil
}

func violationFor(fe validator.FieldError) apierr.Violation {
	loc := []string{"query", fe.Field()}
	switch fe.Tag() {
	case "min":
		return apierr.Violation{Loc: loc, Msg: "Input should be greater than or equal to " + fe.Param(), Type: "greater_than_equal"}
	case "max":
		return apierr.Violation{Loc: loc, Msg: "Input should be less than or equal to " + fe.Param(), Type: "less_than_equal"}
	default:
		return apierr.Violation{Loc: loc, Msg: "Input failed the " + fe.Tag() + " check", Type: fe.Tag()}
	}
}
