// Package models shapes the system export archive.
package models

import (
	"database/sql/driver"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

// Table is one exported collection with a fixed column order.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t Table) Len() int { return len(t.Rows) }

// Records returns the rows keyed by column name.
func (t Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				rec[col] = jsonValue(row[i])
			}
		}
		out = append(out, rec)
	}
	return out
}

// Archive is a point-in-time copy of users, deals, groups and the audit log.
type Archive struct {
	GeneratedAt time.Time
	Users       Table
	Deals       Table
	Groups      Table
	AuditLogs   Table
}

// Filename is the attachment name served to the browser.
func (a *Archive) Filename() string {
	return "rahu_complete_export_" + a.GeneratedAt.UTC().Format("20060102_150405") + ".zip"
}

type metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	TotalUsers  int       `json:"total_users"`
	TotalDeals  int       `json:"total_deals"`
	TotalGroups int       `json:"total_groups"`
	TotalLogs   int       `json:"total_logs"`
}

type document struct {
	Users     []map[string]any `json:"users"`
	Deals     []map[string]any `json:"deals"`
	Groups    []map[string]any `json:"groups"`
	AuditLogs []map[string]any `json:"audit_logs"`
	Metadata  metadata         `json:"export_metadata"`
}

// WriteZip writes one CSV per table plus complete_data.json.
func (a *Archive) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, f := range []struct {
		name  string
		table Table
	}{
		{"users.csv", a.Users},
		{"deals.csv", a.Deals},
		{"groups.csv", a.Groups},
		{"audit_logs.csv", a.AuditLogs},
	} {
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.name, err)
		}
		if err := writeCSV(fw, f.table); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	fw, err := zw.Create("complete_data.json")
	if err != nil {
		return fmt.Errorf("create complete_data.json: %w", err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document{
		Users:     a.Users.Records(),
		Deals:     a.Deals.Records(),
		Groups:    a.Groups.Records(),
		AuditLogs: a.AuditLogs.Records(),
		Metadata: metadata{
			Timestamp:   a.GeneratedAt.UTC(),
			TotalUsers:  a.Users.Len(),
			TotalDeals:  a.Deals.Len(),
			TotalGroups: a.Groups.Len(),
			TotalLogs:   a.AuditLogs.Len(),
		},
	}); err != nil {
		return fmt.Errorf("write complete_data.json: %w", err)
	}
	return zw.Close()
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if len(t.Columns) > 0 {
		if err := cw.Write(t.Columns); err != nil {
			return err
		}
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch x := jsonValue(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// jsonValue normalizes driver values so both encoders render them as text.
func jsonValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if b, ok := dv.([]byte); ok {
			return string(b)
		}
		return dv
	default:
		return v
	}
}
