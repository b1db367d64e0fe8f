package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"hr-bulk-import/internal/models"
	"hr-bulk-import/internal/reference"
	"hr-bulk-import/internal/tabular"
)

// EmployeeImportType is the only import type with real validation.
const EmployeeImportType = "employee"

// EmployeePayload is the create-employee request body.
type EmployeePayload struct {
	FirstName      string  `json:"first_name" label:"First Name" validate:"required,max=100"`
	LastName       string  `json:"last_name" label:"Last Name" validate:"required,max=100"`
	Email          string  `json:"email" label:"Email" validate:"required,email"`
	Phone          string  `json:"phone,omitempty" label:"Phone" validate:"omitempty,phone"`
	EmployeeCode   string  `json:"employee_code,omitempty" label:"Employee Code" validate:"omitempty,max=50"`
	DepartmentID   *string `json:"department_id"`
	DesignationID  *string `json:"designation_id"`
	Gender         string  `json:"gender" label:"Gender" validate:"oneof=male female other unspecified"`
	EmploymentType string  `json:"employment_type" label:"Employment Type" validate:"oneof=permanent contract intern part_time temporary"`
	Status         string  `json:"status" label:"Status" validate:"oneof=active inactive on_leave terminated"`
	DateOfJoining  string  `json:"date_of_joining" label:"Date of Joining" validate:"required,datetime=2006-01-02"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,18}[0-9]$`)

// Employee validates and transforms employee rows.
type Employee struct {
	suggestionLimit int
	now             func() time.Time
	validate        *validator.Validate
}

// NewEmployee builds the employee transformer. A nil now uses time.Now.
func NewEmployee(suggestionLimit int, now func() time.Time) *Employee {
	if now == nil {
		now = time.Now
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("label")
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &Employee{suggestionLimit: suggestionLimit, now: now, validate: v}
}

func (e *Employee) ImportType() string { return EmployeeImportType }

func (e *Employee) Stub() bool { return false }

// References reports departments as optional and designations as mandatory master data.
func (e *Employee) References() (kinds, mandatory []reference.Kind) {
	return []reference.Kind{reference.KindDepartment, reference.KindDesignation},
		[]reference.Kind{reference.KindDesignation}
}

// Transform runs the row through required fields, references, then normalization.
// The first failing step returns a *FieldError.
func (e *Employee) Transform(raw tabular.Row, idx *reference.Index) (any, error) {
	row := ParseEmployeeRow(raw)
	now := e.now()
	row.ApplyDefaults(EmployeeDefaults, now)

	if missing := row.Missing(EmployeeRequired); len(missing) > 0 {
		col := missing[0]
		if len(missing) > 1 {
			col = models.ColumnMultiple
		}
		return nil, &FieldError{Column: col, Message: "Mandatory fields missing: " + strings.Join(missing, ", ")}
	}

	p := EmployeePayload{
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Email:        strings.ToLower(row.Email),
		Phone:        row.Phone,
		EmployeeCode: row.EmployeeCode,
	}

	var err error
	if p.DepartmentID, err = e.resolve(idx, reference.KindDepartment, ColDepartment, row.Department); err != nil {
		return nil, err
	}
	if p.DesignationID, err = e.resolve(idx, reference.KindDesignation, ColDesignation, row.Designation); err != nil {
		return nil, err
	}

	if p.DateOfJoining, err = ParseDate(row.DateOfJoining); err != nil {
		return nil, &FieldError{Column: ColDateOfJoining, Message: fmt.Sprintf("Invalid %s: %v", ColDateOfJoining, err)}
	}
	if row.DateOfBirth != "" {
		dob, err := ParseDate(row.DateOfBirth)
		if err != nil {
			return nil, &FieldError{Column: ColDateOfBirth, Message: fmt.Sprintf("Invalid %s: %v", ColDateOfBirth, err)}
		}
		if dob > now.Format(DateLayout) {
			return nil, &FieldError{Column: ColDateOfBirth, Message: fmt.Sprintf("%s %s is in the future", ColDateOfBirth, dob)}
		}
		p.DateOfBirth = &dob
	}

	var ok bool
	if p.Gender, ok = normalizeEnum(row.Gender, genderTokens); !ok {
		return nil, enumError(ColGender, row.Gender, GenderMale, GenderFemale, GenderOther, GenderUnspecified)
	}
	if p.EmploymentType, ok = normalizeEnum(row.EmploymentType, employmentTokens); !ok {
		return nil, enumError(ColEmploymentType, row.EmploymentType,
			EmploymentPermanent, EmploymentContract, EmploymentIntern, EmploymentPartTime, EmploymentTemporary)
	}
	if p.Status, ok = normalizeEnum(row.Status, statusTokens); !ok {
		return nil, enumError(ColStatus, row.Status, StatusActive, StatusInactive, StatusOnLeave, StatusTerminated)
	}

	if err := e.validate.Struct(p); err != nil {
		return nil, fieldErrorFrom(err)
	}
	return p, nil
}

// resolve maps an optional reference name to an ID. A blank name gives nil.
func (e *Employee) resolve(idx *reference.Index, kind reference.Kind, col, name string) (*string, error) {
	if name == "" {
		return nil, nil
	}
	if id, ok := idx.Resolve(kind, name); ok {
		return &id, nil
	}

	msg := fmt.Sprintf("%s %q not found.", col, name)
	if known := idx.Suggestions(kind, e.suggestionLimit); known != "" {
		msg += fmt.Sprintf(" Available %s: %s.", kind.Plural(), known)
	} else {
		msg += fmt.Sprintf(" No %s are configured.", kind.Plural())
	}
	if closest, ok := idx.Closest(kind, name); ok {
		msg += fmt.Sprintf(" Did you mean %q?", closest)
	}
	return nil, &FieldError{Column: col, Message: msg}
}

func enumError(col, raw string, allowed ...string) error {
	return &FieldError{
		Column:  col,
		Message: fmt.Sprintf("Invalid %s %q: expected one of %s", col, raw, strings.Join(allowed, ", ")),
	}
}

func fieldErrorFrom(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &FieldError{Column: models.ColumnMultiple, Message: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "email":
		return &FieldError{Column: fe.Field(), Message: fmt.Sprintf("Invalid email address %q", fe.Value())}
	case "phone":
		return &FieldError{Column: fe.Field(), Message: fmt.Sprintf("Invalid phone number %q", fe.Value())}
	case "max":
		return &FieldError{Column: fe.Field(), Message: fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())}
	default:
		return &FieldError{Column: fe.Field(), Message: fmt.Sprintf("%s failed %s check", fe.Field(), fe.Tag())}
	}
}
