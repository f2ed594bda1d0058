package presto

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/db"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
)

const (
	// TimestampFormat is the time format string used to produce Presto timestamps.
	TimestampFormat = "2006-01-02 15:04:05.000"
)

// FormatTimestamp renders t as a Presto timestamp literal.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("timestamp '%s'", t.UTC().Format(TimestampFormat))
}

// QuoteIdentifier quotes a single identifier, escaping embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.Replace(name, `"`, `""`, -1) + `"`
}

func FullyQualifiedTableName(catalog, schema, tableName string) string {
	return fmt.Sprintf("%s.%s.%s", QuoteIdentifier(catalog), QuoteIdentifier(schema), QuoteIdentifier(tableName))
}

// Dialect generates Presto DDL for relations of a single catalog and schema.
type Dialect struct {
	Catalog string
	Schema  string
}

func (d Dialect) QualifiedName(name string) string {
	return FullyQualifiedTableName(d.Catalog, d.Schema, name)
}

// QualifiedNameIn names a relation of another schema in the same catalog.
func (d Dialect) QualifiedNameIn(schema, name string) string {
	return FullyQualifiedTableName(d.Catalog, schema, name)
}

func (d Dialect) CreateView(name, query string) string {
	return GenerateCreateViewSQL(d.QualifiedName(name), query, true)
}

func (d Dialect) CreateTableAs(name, query string) string {
	return GenerateCreateTableAsSQL(d.QualifiedName(name), nil, query)
}

func (d Dialect) DropView(name string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", d.QualifiedName(name))
}

func (d Dialect) DropTable(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", d.QualifiedName(name))
}

func GenerateCreateViewSQL(view, query string, replace bool) string {
	fullQuery := "CREATE"
	if replace {
		fullQuery += " OR REPLACE"
	}
	return fmt.Sprintf(fullQuery+" VIEW %s AS %s", view, query)
}

func GenerateCreateTableAsSQL(table string, properties map[string]string, query string) string {
	propsStr := ""
	if len(properties) != 0 {
		propsStr = fmt.Sprintf("\nWITH (%s)", generatePropertiesSQL(properties))
	}
	return fmt.Sprintf("CREATE TABLE %s%s\nAS %s", table, propsStr, query)
}

func generatePropertiesSQL(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	propList := make([]string, len(keys))
	for i, k := range keys {
		propList[i] = fmt.Sprintf("%s = %s", k, props[k])
	}
	return strings.Join(propList, ", ")
}

// ExecuteSelect performs the query and returns every row keyed by column name.
func ExecuteSelect(ctx context.Context, queryer db.Queryer, sql string) ([]query.Row, error) {
	rows, err := queryer.QueryContext(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []query.Row
	for rows.Next() {
		// Create a slice of interface{}'s to represent each column,
		// and a second slice to contain pointers to each item in the columns slice.
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}

		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(query.Row, len(cols))
		for i, colName := range cols {
			val := columnPointers[i].(*interface{})
			m[colName] = *val
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// ExecuteQuery runs a statement and drains its result.
func ExecuteQuery(ctx context.Context, queryer db.Queryer, sql string) error {
	rows, err := queryer.QueryContext(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	// Must call rows.Next() in order for errors to be populated correctly
	// because Query() only submits the query, and doesn't handle
	// success/failure. Next() is the method which inspects the submitted
	// queries status and causes errors to get stored in the sql.Rows object.
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("presto SQL error: %v", err)
	}
	return nil
}
