package store

import (
	"errors"
	"sync"

	"github.com/nkkko/lista/internal/validation"
)

// Form names used by the stores
const (
	FormList    = "list"
	FormProduct = "product"
	FormShare   = "share"
	FormItem    = "item"
)

// formField holds errors that do not belong to a single field
const formField = "_form"

// Validation holds the field errors of each form
type Validation struct {
	mu    sync.RWMutex
	forms map[string]map[string]string
}

// NewValidation creates an empty validation store
func NewValidation() *Validation {
	return &Validation{forms: make(map[string]map[string]string)}
}

// Check replaces the errors of form with errs and reports whether none was set
func (v *Validation) Check(form string, errs ...error) bool {
	fields := make(map[string]string)
	for _, err := range errs {
		if err == nil {
			continue
		}
		var fieldErr *validation.Error
		if errors.As(err, &fieldErr) {
			if _, seen := fields[fieldErr.Field]; !seen {
				fields[fieldErr.Field] = fieldErr.Message
			}
			continue
		}
		fields[formField] = err.Error()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if len(fields) == 0 {
		delete(v.forms, form)
		return true
	}
	v.forms[form] = fields
	return false
}

// Errors returns a copy of the field errors of form
func (v *Validation) Errors(form string) map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]string, len(v.forms[form]))
	for field, message := range v.forms[form] {
		out[field] = message
	}
	return out
}

// FieldError returns the error shown next to field, if any
func (v *Validation) FieldError(form, field string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.forms[form][field]
}

// Valid reports whether form has no errors
func (v *Validation) Valid(form string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.forms[form]) == 0
}

// Clear drops the errors of form
func (v *Validation) Clear(form string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.forms, form)
}

// validate records errs against form and returns the first one
func (v *Validation) validate(form string, errs ...error) error {
	if v.Check(form, errs...) {
		return nil
	}
	return validation.First(errs...)
}
