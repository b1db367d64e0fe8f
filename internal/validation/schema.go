package validation

import (
	"sort"
	"strings"
	"time"

	"hr-bulk-import/internal/tabular"
)

// Column labels as shown to operators in row errors.
const (
	ColFirstName      = "First Name"
	ColLastName       = "Last Name"
	ColEmail          = "Email"
	ColPhone          = "Phone"
	ColEmployeeCode   = "Employee Code"
	ColDepartment     = "Department"
	ColDesignation    = "Designation"
	ColGender         = "Gender"
	ColEmploymentType = "Employment Type"
	ColStatus         = "Status"
	ColDateOfJoining  = "Date of Joining"
	ColDateOfBirth    = "Date of Birth"
)

// EmployeeRequired lists the columns an employee row must carry, in message order.
var EmployeeRequired = []string{ColFirstName, ColLastName, ColEmail}

// employeeAliases maps a folded header to its column label.
var employeeAliases = map[string]string{
	"firstname":        ColFirstName,
	"first":            ColFirstName,
	"givenname":        ColFirstName,
	"lastname":         ColLastName,
	"last":             ColLastName,
	"surname":          ColLastName,
	"familyname":       ColLastName,
	"email":            ColEmail,
	"emailaddress":     ColEmail,
	"workemail":        ColEmail,
	"phone":            ColPhone,
	"phonenumber":      ColPhone,
	"mobile":           ColPhone,
	"mobilenumber":     ColPhone,
	"contactnumber":    ColPhone,
	"employeecode":     ColEmployeeCode,
	"employeeid":       ColEmployeeCode,
	"empcode":          ColEmployeeCode,
	"department":       ColDepartment,
	"dept":             ColDepartment,
	"designation":      ColDesignation,
	"jobtitle":         ColDesignation,
	"gender":           ColGender,
	"sex":              ColGender,
	"employmenttype":   ColEmploymentType,
	"emptype":          ColEmploymentType,
	"status":           ColStatus,
	"employmentstatus": ColStatus,
	"dateofjoining":    ColDateOfJoining,
	"joiningdate":      ColDateOfJoining,
	"doj":              ColDateOfJoining,
	"dateofbirth":      ColDateOfBirth,
	"birthdate":        ColDateOfBirth,
	"dob":              ColDateOfBirth,
}

// EmployeeRow is the strict shape of one employee line after header mapping.
type EmployeeRow struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	EmployeeCode   string
	Department     string
	Designation    string
	Gender         string
	EmploymentType string
	Status         string
	DateOfJoining  string
	DateOfBirth    string
}

// ParseEmployeeRow maps raw headers onto the schema. Unknown headers are ignored;
// when two headers alias the same column, the first non-blank one in sorted header
// order wins. Rows carry no column order, so sorting keeps the choice stable.
func ParseEmployeeRow(raw tabular.Row) EmployeeRow {
	headers := make([]string, 0, len(raw))
	for h := range raw {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	var row EmployeeRow
	for _, h := range headers {
		label, ok := employeeAliases[foldHeader(h)]
		if !ok {
			continue
		}
		dst := row.field(label)
		if *dst == "" {
			*dst = strings.TrimSpace(raw[h])
		}
	}
	return row
}

func (r *EmployeeRow) field(label string) *string {
	switch label {
	case ColFirstName:
		return &r.FirstName
	case ColLastName:
		return &r.LastName
	case ColEmail:
		return &r.Email
	case ColPhone:
		return &r.Phone
	case ColEmployeeCode:
		return &r.EmployeeCode
	case ColDepartment:
		return &r.Department
	case ColDesignation:
		return &r.Designation
	case ColGender:
		return &r.Gender
	case ColEmploymentType:
		return &r.EmploymentType
	case ColStatus:
		return &r.Status
	case ColDateOfJoining:
		return &r.DateOfJoining
	case ColDateOfBirth:
		return &r.DateOfBirth
	}
	return new(string)
}

// Default yields the value used for a blank field.
type Default func(now time.Time) string

// Fixed is a Default that always returns v.
func Fixed(v string) Default {
	return func(time.Time) string { return v }
}

// Today defaults a date column to the current day.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// EmployeeDefaults is applied once, before validation, to blank employee fields.
var EmployeeDefaults = map[string]Default{
	ColGender:         Fixed(GenderUnspecified),
	ColEmploymentType: Fixed(EmploymentPermanent),
	ColStatus:         Fixed(StatusActive),
	ColDateOfJoining:  Today,
}

// ApplyDefaults fills blank fields of r from defaults.
func (r *EmployeeRow) ApplyDefaults(defaults map[string]Default, now time.Time) {
	for label, def := range defaults {
		dst := r.field(label)
		if strings.TrimSpace(*dst) == "" {
			*dst = def(now)
		}
	}
}

// Missing returns the labels in required whose value is blank.
func (r *EmployeeRow) Missing(required []string) []string {
	var out []string
	for _, label := range required {
		if strings.TrimSpace(*r.field(label)) == "" {
			out = append(out, label)
		}
	}
	return out
}

func foldHeader(h string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(h) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		}
	}
	return b.String()
}
