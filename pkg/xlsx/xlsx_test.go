package xlsx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRenderWritesHeadersAndRows(t *testing.T) {
	data, err := Render(Sheet{
		Name:    "Credits",
		Columns: []Column{{Header: "User", Width: 20}, {Header: "Amount"}},
		Rows:    [][]any{{"a@example.com", 5}, {"b@example.com", -1}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Credits"}, f.GetSheetList())
	rows, err := f.GetRows("Credits")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"User", "Amount"}, {"a@example.com", "5"}, {"b@example.com", "-1"}}, rows)
}

func TestRenderDefaultsSheetName(t *testing.T) {
	data, err := Render(Sheet{Columns: []Column{{Header: "Only"}}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{"Sheet1"}, f.GetSheetList())
}

func TestReadRowsSkipsHeader(t *testing.T) {
	data, err := Render(Sheet{Name: "Log", Columns: []Column{{Header: "Event"}}, Rows: [][]any{{"evt_1"}}})
	require.NoError(t, err)

	rows, err := ReadRows(data, "Log")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"evt_1"}}, rows)
}
