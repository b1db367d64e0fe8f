package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-bulk-import/internal/models"
	"hr-bulk-import/internal/reference"
	"hr-bulk-import/internal/tabular"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func testIndex(t *testing.T) *reference.Index {
	t.Helper()
	idx, err := reference.Build(map[reference.Kind][]reference.Entry{
		reference.KindDepartment: {
			{ID: "10", Name: "Engineering"}, {ID: "11", Name: "Human Resources"}, {ID: "12", Name: "Sales"},
			{ID: "13", Name: "Marketing"}, {ID: "14", Name: "Finance"}, {ID: "15", Name: "Legal"},
		},
		reference.KindDesignation: {{ID: "20", Name: "Software Engineer"}, {ID: "21", Name: "Manager"}},
	}, reference.KindDesignation)
	require.NoError(t, err)
	return idx
}

func validRow() tabular.Row {
	return tabular.Row{
		"First Name":  "Ada",
		"Last Name":   "Lovelace",
		"Email":       "Ada@Example.com",
		"Department":  " engineering ",
		"Designation": "MANAGER",
	}
}

func transform(t *testing.T, row tabular.Row) (EmployeePayload, *FieldError) {
	t.Helper()
	out, err := NewEmployee(5, func() time.Time { return fixedNow }).Transform(row, testIndex(t))
	if err != nil {
		var fe *FieldError
		require.True(t, errors.As(err, &fe), "expected *FieldError, got %T", err)
		return EmployeePayload{}, fe
	}
	p, ok := out.(EmployeePayload)
	require.True(t, ok)
	return p, nil
}

func TestTransformValidRowAppliesDefaults(t *testing.T) {
	p, fe := transform(t, validRow())
	require.Nil(t, fe)

	assert.Equal(t, "ada@example.com", p.Email)
	require.NotNil(t, p.DepartmentID)
	assert.Equal(t, "10", *p.DepartmentID)
	require.NotNil(t, p.DesignationID)
	assert.Equal(t, "21", *p.DesignationID)
	assert.Equal(t, GenderUnspecified, p.Gender)
	assert.Equal(t, EmploymentPermanent, p.EmploymentType)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, "2024-03-15", p.DateOfJoining, "blank joining date defaults to today")
	assert.Nil(t, p.DateOfBirth)
}

func TestParseEmployeeRowAliasCollision(t *testing.T) {
	row := ParseEmployeeRow(tabular.Row{"Work Email": "w@example.com", "Email": "e@example.com"})
	assert.Equal(t, "e@example.com", row.Email, "sorted header order decides")

	row = ParseEmployeeRow(tabular.Row{"Work Email": "w@example.com", "Email": "  "})
	assert.Equal(t, "w@example.com", row.Email, "blank aliases are skipped")

	for i := 0; i < 20; i++ {
		row = ParseEmployeeRow(tabular.Row{"Mobile": "111", "Phone": "222", "Contact Number": "333"})
		require.Equal(t, "333", row.Phone)
	}
}

func TestTransformHeaderAliases(t *testing.T) {
	p, fe := transform(t, tabular.Row{
		"first_name":    "Grace",
		"SURNAME":       "Hopper",
		"Email Address": "grace@example.com",
		"Job Title":     "software engineer",
		"DOJ":           "01/02/2023",
		"Sex":           "F",
		"Emp Type":      "Part-Time",
		"Notes":         "ignored",
	})
	require.Nil(t, fe)
	assert.Equal(t, "Grace", p.FirstName)
	assert.Equal(t, "Hopper", p.LastName)
	assert.Equal(t, "2023-02-01", p.DateOfJoining)
	assert.Equal(t, GenderFemale, p.Gender)
	assert.Equal(t, EmploymentPartTime, p.EmploymentType)
	assert.Nil(t, p.DepartmentID, "absent department maps to nil")
}

func TestTransformMissingRequiredFields(t *testing.T) {
	row := validRow()
	delete(row, "Email")
	_, fe := transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColEmail, fe.Column)
	assert.Equal(t, "Mandatory fields missing: Email", fe.Message)

	row = validRow()
	row["First Name"] = "  "
	delete(row, "Email")
	_, fe = transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, models.ColumnMultiple, fe.Column)
	assert.Equal(t, "Mandatory fields missing: First Name, Email", fe.Message)
}

func TestTransformUnknownDepartmentSuggests(t *testing.T) {
	row := validRow()
	row["Department"] = "Engg"
	_, fe := transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColDepartment, fe.Column)
	assert.Contains(t, fe.Message, `Department "Engg" not found.`)
	assert.Contains(t, fe.Message, "Engineering, Human Resources, Sales, Marketing, Finance, ...")
	assert.NotContains(t, fe.Message, "Legal")
	assert.Contains(t, fe.Message, `Did you mean "Engineering"?`)
}

func TestTransformStepOrder(t *testing.T) {
	// A bad reference is reported before a bad date or enum on the same row.
	row := validRow()
	row["Department"] = "Nowhere"
	row["Date of Joining"] = "not a date"
	row["Gender"] = "robot"
	_, fe := transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColDepartment, fe.Column)

	row["Department"] = "Sales"
	_, fe = transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColDateOfJoining, fe.Column)

	row["Date of Joining"] = "2023-01-09"
	_, fe = transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColGender, fe.Column)
	assert.Contains(t, fe.Message, "expected one of male, female, other, unspecified")
}

func TestTransformFormatChecks(t *testing.T) {
	row := validRow()
	row["Email"] = "not-an-email"
	_, fe := transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColEmail, fe.Column)

	row = validRow()
	row["Phone"] = "12ab"
	_, fe = transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColPhone, fe.Column)

	row = validRow()
	row["Phone"] = "+44 (20) 7946-0958"
	row["Date of Birth"] = "2030-01-01"
	_, fe = transform(t, row)
	require.NotNil(t, fe)
	assert.Equal(t, ColDateOfBirth, fe.Column)

	for _, v := range []string{"nan", "2024"} {
		row = validRow()
		row["Date of Joining"] = v
		_, fe = transform(t, row)
		require.NotNil(t, fe, v)
		assert.Equal(t, ColDateOfJoining, fe.Column, v)
	}
}

func TestTransformIsIsolatedPerRow(t *testing.T) {
	tr := NewEmployee(5, func() time.Time { return fixedNow })
	idx := testIndex(t)

	bad := validRow()
	bad["Department"] = "Nowhere"
	good := validRow()

	before, err := tr.Transform(good, idx)
	require.NoError(t, err)
	_, err = tr.Transform(bad, idx)
	require.Error(t, err)
	after, err := tr.Transform(good, idx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestParseDate(t *testing.T) {
	cases := map[string]string{
		"2024-01-15":           "2024-01-15",
		"15/01/2024":           "2024-01-15",
		"5-1-2024":             "2024-01-05",
		"15 Jan 2024":          "2024-01-15",
		"Jan 15, 2024":         "2024-01-15",
		"45306":                "2024-01-15",
		"2024-01-15T00:00:00Z": "2024-01-15",
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "yesterday", "31/02/2024", "-4", "NaN", "nan", "Inf", "1e5", "2024", "12"} {
		_, err := ParseDate(in)
		assert.Error(t, err, in)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(5)
	assert.Equal(t, []string{"attendance", "employee", "leave"}, r.Types())

	tr, err := r.Lookup("leave")
	require.NoError(t, err)
	assert.True(t, tr.Stub())
	kinds, mandatory := tr.References()
	assert.Empty(t, kinds)
	assert.Empty(t, mandatory)

	_, err = r.Lookup("payroll")
	assert.ErrorIs(t, err, ErrUnknownImportType)
}
