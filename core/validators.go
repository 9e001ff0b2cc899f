package core

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

var (
	// custom validation tags & texts
	hhmmTag  = "hhmm"
	hhmmText = "must be a time of day formatted as HH:MM"

	weekdaysTag  = "weekdays"
	weekdaysText = "must only contain week days (mon, tue, wed, thu, fri, sat, sun)"

	windowTag  = "sendlimit"
	windowText = "must be one of: none, daily, weekly"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewValidator returns a validator and its english translator with our custom tags registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)
	return validate, translator
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(hhmmTag, hhmmValidation)
	RegisterCustomTranslation(validate, translator, hhmmTag, hhmmText)

	_ = validate.RegisterValidation(weekdaysTag, weekdaysValidation)
	RegisterCustomTranslation(validate, translator, weekdaysTag, weekdaysText)

	_ = validate.RegisterValidation(windowTag, windowValidation)
	RegisterCustomTranslation(validate, translator, windowTag, windowText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

func hhmmValidation(fl validator.FieldLevel) bool {
	_, err := recurrence.ParseTimeOfDay(fl.Field().String())
	return err == nil
}

// weekdaysValidation accepts a []string of day names.
func weekdaysValidation(fl validator.FieldLevel) bool {
	fld := fl.Field()
	if fld.Kind() != reflect.Slice {
		return false
	}
	names := make([]string, 0, fld.Len())
	for i := 0; i < fld.Len(); i++ {
		names = append(names, fld.Index(i).String())
	}
	_, err := recurrence.ParseWeekdays(strings.Join(names, ","))
	return err == nil
}

func windowValidation(fl validator.FieldLevel) bool {
	_, err := recurrence.ParseWindow(fl.Field().String())
	return err == nil
}
