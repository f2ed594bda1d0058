package testhelpers

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportComparisionEpsilon = 0.0001

// ParseCSV returns the rows of a CSV relation keyed by its header.
func ParseCSV(t *testing.T, data []byte) []map[string]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records, "relation has no header")

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, column := range header {
			row[column] = record[i]
		}
		rows = append(rows, row)
	}
	return rows
}

// AssertReportResultsEqual compares rows column by column. Values of the
// comparison columns are parsed as floats and may differ by a small relative
// error, due to floating point precision.
func AssertReportResultsEqual(t *testing.T, expected, actual []map[string]string, comparisonColumnNames []string) {
	t.Helper()
	require.Len(t, actual, len(expected), "new should have same number of rows as existing report")

	isCompareColumn := make(map[string]bool, len(comparisonColumnNames))
	for _, column := range comparisonColumnNames {
		isCompareColumn[column] = true
	}

	for i, actualRow := range actual {
		expectedRow := expected[i]

		actualColumns := sortedKeys(actualRow)
		assert.Equal(t, sortedKeys(expectedRow), actualColumns, "expecting the same columns in actual and expected row %d", i)
		for _, column := range actualColumns {
			actualValue := actualRow[column]
			expectedValue, expectedExists := expectedRow[column]
			if !expectedExists {
				t.Errorf("missing column %s value from expected row", column)
				continue
			}
			if !isCompareColumn[column] {
				assert.Equal(t, expectedValue, actualValue, "expected column %q values between actual and expected row %d to be the same", column, i)
				continue
			}
			expectedFloat, err := strconv.ParseFloat(expectedValue, 64)
			require.NoError(t, err)
			actualFloat, err := strconv.ParseFloat(actualValue, 64)
			require.NoError(t, err)
			if expectedFloat == 0 {
				assert.InDelta(t, expectedFloat, actualFloat, reportComparisionEpsilon, "expected column %q value to be within delta of expected row %d", column, i)
			} else {
				assert.InEpsilonf(t, expectedFloat, actualFloat, reportComparisionEpsilon, "expected column %q value to be within delta of expected row %d", column, i)
			}
		}
	}
}

func sortedKeys(row map[string]string) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
