package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Messages returned to API clients.
const (
	MsgRequired           = "This field is required."
	MsgBlank              = "This field may not be blank."
	MsgInvalidEmail       = "Enter a valid email address."
	MsgPasswordMismatch   = "You must type the same password each time."
	MsgEmailTaken         = "A user is already registered with this e-mail address."
	MsgUserNameTaken      = "A user with that username already exists."
	MsgInvalidCredentials = "Unable to log in with provided credentials."
	MsgAccountDisabled    = "User account is disabled."
	MsgEmailNotVerified   = "E-mail is not verified."
	MsgEmailNotAssigned   = "The e-mail address is not assigned to any user account"
	MsgInvalidValue       = "Invalid value"
	MsgInvalidPassword    = "Invalid password"
)

// NonFieldErrors collects errors that concern the request as a whole.
const NonFieldErrors = "non_field_errors"

// FieldErrors maps field names to messages. It keeps the order in which
// fields were first reported, and marshals to JSON in that order.
type FieldErrors struct {
	order []string
	msgs  map[string][]string
}

func (e *FieldErrors) Add(field, msg string) {
	if e.msgs == nil {
		e.msgs = make(map[string][]string)
	}
	if _, ok := e.msgs[field]; !ok {
		e.order = append(e.order, field)
	}
	e.msgs[field] = append(e.msgs[field], msg)
}

func (e *FieldErrors) Get(field string) []string {
	return e.msgs[field]
}

func (e *FieldErrors) Fields() []string {
	return append([]string(nil), e.order...)
}

func (e *FieldErrors) Empty() bool {
	return len(e.order) == 0
}

// Err returns a *ValidationError, or nil when nothing was reported.
func (e *FieldErrors) Err() error {
	if e.Empty() {
		return nil
	}
	return &ValidationError{Fields: e}
}

func (e *FieldErrors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range e.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.msgs[field])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ValidationError is returned when input is rejected field by field.
type ValidationError struct {
	Fields *FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields.order))
	for _, f := range e.Fields.order {
		parts = append(parts, f+": "+strings.Join(e.Fields.msgs[f], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError is a shortcut for a single-message error.
func NewValidationError(field, msg string) *ValidationError {
	fe := &FieldErrors{}
	fe.Add(field, msg)
	return &ValidationError{Fields: fe}
}

var validate = validator.New()

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// requireValue reports MsgRequired for a missing field and MsgBlank for an
// empty one. It returns true when v holds a non-empty value.
func requireValue(errs *FieldErrors, field string, v *string) bool {
	switch {
	case v == nil:
		errs.Add(field, MsgRequired)
		return false
	case *v == "":
		errs.Add(field, MsgBlank)
		return false
	}
	return true
}

// checkPasswordPair validates the password1/password2 pair used by signup,
// password change and reset confirmation.
func checkPasswordPair(errs *FieldErrors, p1, p2 *string) {
	ok1 := requireValue(errs, "password1", p1)
	ok2 := requireValue(errs, "password2", p2)
	if ok1 && ok2 && *p1 != *p2 {
		errs.Add("password2", MsgPasswordMismatch)
	}
}

func value(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
