package aws

import (
	"path/filepath"
	"sort"
	"time"
)

// Manifest is a representation of the file AWS provides with metadata for a
// cost and usage report.
type Manifest struct {
	AssemblyID             string        `json:"assemblyId"`
	Account                string        `json:"account"`
	Columns                Columns       `json:"columns"`
	Charset                string        `json:"charset"`
	Compression            string        `json:"compression"`
	ContentType            string        `json:"contentType"`
	ReportID               string        `json:"reportId"`
	ReportName             string        `json:"reportName"`
	BillingPeriod          BillingPeriod `json:"billingPeriod"`
	Bucket                 string        `json:"bucket"`
	ReportKeys             []string      `json:"reportKeys"`
	AdditionalArtifactKeys []string      `json:"additionalArtifactKeys"`
}

type BillingPeriod struct {
	Start Time `json:"start"`
	End   Time `json:"end"`
}

// Paths returns the directories containing usage data. The result will be free of duplicates.
func (m Manifest) Paths() (paths []string) {
	pathMap := map[string]struct{}{}
	for _, key := range m.ReportKeys {
		dirPath := filepath.Dir(key)
		pathMap[dirPath] = struct{}{}
	}

	for path := range pathMap {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return
}

// MissingColumns returns the entries of required that the report does not
// provide, compared by their Athena names.
func (m Manifest) MissingColumns(required []string) []string {
	present := make(map[string]struct{}, len(m.Columns))
	for _, col := range m.Columns {
		present[col.AthenaName()] = struct{}{}
	}
	var missing []string
	for _, name := range required {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

type Time struct {
	time.Time
}

const manifestTime = "20060102T000000.000Z"

func (t *Time) UnmarshalJSON(b []byte) error {
	// b contains quotes around the timestamp
	tt, err := time.Parse(manifestTime, string(b[1:len(b)-1]))
	if err == nil {
		*t = Time{tt}
	}
	return err
}

func (t *Time) String() string {
	return t.Format(manifestTime)
}
