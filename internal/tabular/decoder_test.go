package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDecodeCSV(t *testing.T) {
	in := "\xef\xbb\xbfFirst Name, Email ,Department\n" +
		"Ada,ada@example.com,Engineering\n" +
		",,\n" +
		"Grace,grace@example.com\n"

	table, err := Decode("staff.CSV", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name", "Email", "Department"}, table.Headers)
	require.Len(t, table.Rows, 2, "blank row skipped")
	assert.Equal(t, "Engineering", table.Rows[0]["Department"])

	v, ok := table.Rows[1]["Department"]
	assert.True(t, ok, "short record should pad missing cells")
	assert.Empty(t, v)
}

func TestDecodeCSVKeepsSourceLines(t *testing.T) {
	in := "First Name,Email\n" +
		"Ada,ada@example.com\n" +
		"\n" +
		",\n" +
		"\"Grace\nHopper\",grace@example.com\n" +
		"Linus,linus@example.com\n"

	table, err := Decode("staff.csv", strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []int{2, 5, 7}, table.Lines)
	assert.Equal(t, 7, table.Line(2))
	assert.Equal(t, "Grace\nHopper", table.Rows[1]["First Name"])
}

func TestTableLineWithoutLines(t *testing.T) {
	assert.Equal(t, 2, Table{}.Line(0))
	assert.Equal(t, 11, Table{}.Line(9))
}

func TestDecodeEmptySource(t *testing.T) {
	for name, in := range map[string]string{
		"header only": "First Name,Email\n",
		"blank":       "\n\n",
	} {
		_, err := Decode("x.csv", strings.NewReader(in))
		assert.ErrorIs(t, err, ErrEmptySource, name)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode("staff.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func writeWorkbook(t *testing.T, sheet string, rows map[int][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for n, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, n)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDecodeWorkbookUsesFirstNonEmptySheet(t *testing.T) {
	// Sheet1 stays empty; data lives on the second sheet.
	data := writeWorkbook(t, "Employees", map[int][]any{
		1: {"First Name", "Email", "Date of Joining"},
		2: {"Ada", "ada@example.com", 45306},
		3: {"Grace", "grace@example.com", nil},
	})

	table, err := Decode("staff.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "45306", table.Rows[0]["Date of Joining"], "raw serial value")
	assert.Equal(t, "Grace", table.Rows[1]["First Name"])
}

func TestDecodeWorkbookKeepsSheetRows(t *testing.T) {
	data := writeWorkbook(t, "Sheet1", map[int][]any{
		1: {"First Name", "Email"},
		2: {"Ada", "ada@example.com"},
		4: {"Grace", "grace@example.com"},
	})

	table, err := Decode("staff.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []int{2, 4}, table.Lines)
}
