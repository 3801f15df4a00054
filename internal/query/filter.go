package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/franz/catstats/internal/analytics"
	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/marc"
	"github.com/franz/catstats/internal/store"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidFilter is wrapped by every filter validation failure
var ErrInvalidFilter = errors.New("invalid report filter")

// Filter selects the records a report counts
type Filter struct {
	Report       string `json:"report" form:"report" validate:"required,report"`
	CatCenter    string `json:"cat_center" form:"cat_center" validate:"required,catcenter"`
	Year         string `json:"year" form:"year" validate:"required,catyear"`
	Month        string `json:"month" form:"month" validate:"required,month"`
	Period       string `json:"report_period" form:"report_period" validate:"omitempty,oneof=ym fy cy"`
	Cataloger    string `json:"cataloger" form:"cataloger" validate:"max=20"`
	LanguageCode string `json:"language_code" form:"language_code" validate:"max=3"`
	PlaceCode    string `json:"place_code" form:"place_code" validate:"max=3"`
	ProjectCode  string `json:"f962_k_code" form:"f962_k_code" validate:"max=50"`
}

// FieldError is one failed filter field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FilterError lists every failed field
type FilterError struct {
	Fields []FieldError
}

func (e *FilterError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return fmt.Sprintf("%v: %s", ErrInvalidFilter, strings.Join(msgs, "; "))
}

func (e *FilterError) Unwrap() error {
	return ErrInvalidFilter
}

var validate *validator.Validate

// now is replaced in tests
var now = time.Now

func init() {
	validate = validator.New()

	validate.RegisterValidation("report", func(fl validator.FieldLevel) bool {
		_, ok := LookupReport(fl.Field().String())
		return ok
	})
	validate.RegisterValidation("catcenter", func(fl validator.FieldLevel) bool {
		return IsCatCenter(fl.Field().String())
	})
	validate.RegisterValidation("catyear", func(fl validator.FieldLevel) bool {
		y, err := strconv.Atoi(fl.Field().String())
		return err == nil && y >= FirstYear && y <= now().Year()
	})
	validate.RegisterValidation("month", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		m, err := strconv.Atoi(s)
		return err == nil && len(s) == 2 && m >= 1 && m <= 12
	})
}

// Normalize trims every field, lower-cases the user-entered codes and
// defaults the period to a single month
func (f *Filter) Normalize() {
	f.Report = strings.TrimSpace(f.Report)
	f.CatCenter = strings.TrimSpace(f.CatCenter)
	f.Year = strings.TrimSpace(f.Year)
	f.Month = strings.TrimSpace(f.Month)
	if len(f.Month) == 1 {
		f.Month = "0" + f.Month
	}
	f.Period = strings.ToLower(strings.TrimSpace(f.Period))
	if f.Period == "" {
		f.Period = PeriodMonth
	}
	if !strings.EqualFold(f.CatCenter, AllCenters) {
		f.CatCenter = strings.ToLower(f.CatCenter)
	} else {
		f.CatCenter = AllCenters
	}

	f.Cataloger = strings.ToLower(strings.TrimSpace(f.Cataloger))
	f.LanguageCode = strings.ToLower(strings.TrimSpace(f.LanguageCode))
	f.PlaceCode = strings.ToLower(strings.TrimSpace(f.PlaceCode))
	f.ProjectCode = strings.ToLower(strings.TrimSpace(f.ProjectCode))
}

// Validate normalizes and checks the filter
func (f *Filter) Validate() error {
	f.Normalize()

	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	fe := &FilterError{}
	for _, v := range verrs {
		fe.Fields = append(fe.Fields, FieldError{
			Field:   jsonName(v.Field()),
			Message: fieldMessage(v),
		})
	}
	return fe
}

func jsonName(field string) string {
	switch field {
	case "CatCenter":
		return "cat_center"
	case "Period":
		return "report_period"
	case "LanguageCode":
		return "language_code"
	case "PlaceCode":
		return "place_code"
	case "ProjectCode":
		return "f962_k_code"
	default:
		return strings.ToLower(field)
	}
}

func fieldMessage(v validator.FieldError) string {
	field := jsonName(v.Field())
	switch v.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "report":
		return fmt.Sprintf("%s must be one of 01-06, got %q", field, v.Value())
	case "catcenter":
		return fmt.Sprintf("%s %q is not a known cataloging center", field, v.Value())
	case "catyear":
		return fmt.Sprintf("%s must be between %d and %d", field, FirstYear, now().Year())
	case "month":
		return fmt.Sprintf("%s must be 01-12", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, v.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, v.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// YearMonth returns the yyyymm the filter is anchored on
func (f Filter) YearMonth() string {
	return f.Year + f.Month
}

// Range returns the inclusive yyyymm bounds of the filter's period.
// Fiscal years run July to June.
func (f Filter) Range() (string, string) {
	year, _ := strconv.Atoi(f.Year)
	month, _ := strconv.Atoi(f.Month)

	switch f.Period {
	case PeriodCalendarYear:
		return fmt.Sprintf("%04d01", year), fmt.Sprintf("%04d12", year)
	case PeriodFiscalYear:
		if month >= 7 {
			return fmt.Sprintf("%04d07", year), fmt.Sprintf("%04d06", year+1)
		}
		return fmt.Sprintf("%04d07", year-1), fmt.Sprintf("%04d06", year)
	default:
		ym := f.YearMonth()
		return ym, ym
	}
}

// Selection converts the filter into a store selection
func (f Filter) Selection() store.Selection {
	start, end := f.Range()
	sel := store.Selection{
		StartYM:   start,
		EndYM:     end,
		Cataloger: f.Cataloger,
		Language:  f.LanguageCode,
		Place:     f.PlaceCode,
		Project:   f.ProjectCode,
	}
	if f.CatCenter != AllCenters {
		sel.CatCenter = f.CatCenter
	}
	return sel
}

// MatchRow reports whether one decoded field of a live report row passes
// the filter. Center, cataloger and project are substring matches, the
// language and place codes must match exactly and $d must be present.
func (f Filter) MatchRow(sf marc.Subfields, row analytics.Row, cols catalog.Columns) bool {
	if f.CatCenter != AllCenters && f.CatCenter != "" &&
		!strings.Contains(sf.Last(catalog.CodeCatCenter), f.CatCenter) {
		return false
	}
	if f.Cataloger != "" && !strings.Contains(strings.ToLower(sf.Last(catalog.CodeCataloger)), f.Cataloger) {
		return false
	}

	ym := catalog.YearMonth(sf.Last(catalog.CodeYearMonth))
	start, end := f.Range()
	if ym < start || ym > end {
		return false
	}

	if !sf.Has(catalog.CodeDifficulty) {
		return false
	}
	if f.ProjectCode != "" && !strings.Contains(sf.Last(catalog.CodeProject), f.ProjectCode) {
		return false
	}
	if f.LanguageCode != "" && f.LanguageCode != row[cols.Language] {
		return false
	}
	if f.PlaceCode != "" && f.PlaceCode != row[cols.Place] {
		return false
	}

	return true
}
