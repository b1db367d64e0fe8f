package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DateLayout is the canonical date format sent to the create API.
const DateLayout = "2006-01-02"

// Enum tokens accepted by the create API.
const (
	GenderMale        = "male"
	GenderFemale      = "female"
	GenderOther       = "other"
	GenderUnspecified = "unspecified"

	EmploymentPermanent = "permanent"
	EmploymentContract  = "contract"
	EmploymentIntern    = "intern"
	EmploymentPartTime  = "part_time"
	EmploymentTemporary = "temporary"

	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusOnLeave    = "on_leave"
	StatusTerminated = "terminated"
)

var dateLayouts = []string{
	DateLayout,
	"2006-1-2",
	"2006/1/2",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Excel serial bounds. The floor (1927-05-18) keeps bare years such as "2024"
// from being read as serials; the ceiling is 9999-12-31.
const (
	minExcelSerial = 10000
	maxExcelSerial = 2958465
)

var serialPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseDate normalizes raw to YYYY-MM-DD. Day-first numeric forms are assumed.
// Plain decimal numbers are treated as Excel date serials.
func ParseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("date is empty")
	}
	if serialPattern.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < minExcelSerial || f > maxExcelSerial {
			return "", fmt.Errorf("date serial %q out of range", s)
		}
		t, err := excelize.ExcelDateToTime(f, false)
		if err != nil {
			return "", fmt.Errorf("convert date serial %q: %w", s, err)
		}
		return t.Format(DateLayout), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

var (
	genderTokens = map[string]string{
		"male":              GenderMale,
		"m":                 GenderMale,
		"female":            GenderFemale,
		"f":                 GenderFemale,
		"other":             GenderOther,
		"o":                 GenderOther,
		"unspecified":       GenderUnspecified,
		"prefer not to say": GenderUnspecified,
	}
	employmentTokens = map[string]string{
		"permanent": EmploymentPermanent,
		"full time": EmploymentPermanent,
		"contract":  EmploymentContract,
		"intern":    EmploymentIntern,
		"part time": EmploymentPartTime,
		"temporary": EmploymentTemporary,
		"temp":      EmploymentTemporary,
	}
	statusTokens = map[string]string{
		"active":     StatusActive,
		"inactive":   StatusInactive,
		"on leave":   StatusOnLeave,
		"terminated": StatusTerminated,
	}
)

// normalizeEnum lower-cases raw, folds "_" and "-" to spaces and maps it to a token.
func normalizeEnum(raw string, tokens map[string]string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	v, ok := tokens[key]
	return v, ok
}
