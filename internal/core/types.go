package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Format identifies a supported source file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatPDF  Format = "pdf"
)

// SupportedFormats lists every format accepted for upload, in display order.
var SupportedFormats = []Format{FormatPDF, FormatXLSX, FormatXLS, FormatCSV}

// FormatFromFilename selects the format from the file extension only.
// There is no content sniffing: an unknown extension is an input error.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, f := range SupportedFormats {
		if string(f) == ext {
			return f, nil
		}
	}
	if ext == "" {
		ext = "(none)"
	}
	return "", inputError("detect format", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext))
}

// Column is a canonical catalog column that raw rows are keyed by.
type Column string

const (
	ColumnName        Column = "name"
	ColumnPrice       Column = "price"
	ColumnCategory    Column = "category"
	ColumnDescription Column = "description"
	ColumnAvailable   Column = "available"
)

// PositionalColumns is the column order assumed for header-less rows.
var PositionalColumns = []Column{ColumnName, ColumnPrice, ColumnCategory, ColumnDescription, ColumnAvailable}

// Cell is one raw value tagged with the column it was read from.
type Cell struct {
	Column Column
	Value  string
}

// RawRow is a single source row before normalization.
// Index is the 1-based row (or line) number in the source.
type RawRow struct {
	Index int
	Raw   string
	Cells []Cell
}

// Get returns the raw value for a column. The second result is false when
// the row has no cell for that column.
func (r RawRow) Get(c Column) (string, bool) {
	for _, cell := range r.Cells {
		if cell.Column == c {
			return cell.Value, true
		}
	}
	return "", false
}

// Set replaces or appends the cell for a column.
func (r *RawRow) Set(c Column, value string) {
	for i := range r.Cells {
		if r.Cells[i].Column == c {
			r.Cells[i].Value = value
			return
		}
	}
	r.Cells = append(r.Cells, Cell{Column: c, Value: value})
}

// MaxRawContentLen caps ParseError.RawContent.
const MaxRawContentLen = 120

// ParseError describes one row that could not be turned into a record.
// A ParseError never aborts the batch it belongs to.
type ParseError struct {
	RowIndex   int    `json:"row_index"`
	RawContent string `json:"raw_content"`
	Reason     string `json:"reason"`
}

// NewParseError builds a ParseError with the raw content truncated.
func NewParseError(row int, raw, reason string) ParseError {
	return ParseError{
		RowIndex:   row,
		RawContent: truncateRunes(strings.TrimSpace(raw), MaxRawContentLen),
		Reason:     reason,
	}
}

func (e ParseError) Error() string {
	if e.RowIndex > 0 {
		return fmt.Sprintf("row %d: %s", e.RowIndex, e.Reason)
	}
	return e.Reason
}

// UncategorizedCategory is the category given to records without one.
const UncategorizedCategory = "uncategorized"

// CatalogRecord is a normalized product candidate read from a source.
type CatalogRecord struct {
	Name        string
	Price       decimal.Decimal
	Category    string
	Description string
	Available   bool
}

// Key returns the identity used to match the record against the catalog.
func (r CatalogRecord) Key() string {
	return NormalizeKey(r.Name)
}

// Product is a catalog row as held by the catalog store.
type Product struct {
	ID          string
	TenantID    int64
	Name        string
	Price       decimal.Decimal
	Category    string
	Description string
	Available   bool
	UpdatedAt   time.Time
}

// Key returns the product's matching identity within its tenant.
func (p Product) Key() string {
	return NormalizeKey(p.Name)
}

// Matches reports whether every synchronized field equals the record's.
// Prices compare by exact decimal value.
func (p Product) Matches(r CatalogRecord) bool {
	return p.Price.Equal(r.Price) &&
		p.Category == r.Category &&
		p.Description == r.Description &&
		p.Available == r.Available
}

// WithRecord returns a copy of p carrying the record's synchronized fields.
// ID, tenant and name are preserved.
func (p Product) WithRecord(r CatalogRecord) Product {
	p.Price = r.Price
	p.Category = r.Category
	p.Description = r.Description
	p.Available = r.Available
	return p
}

// ChangeSet is the set of writes one reconciliation applies atomically.
type ChangeSet struct {
	Create []Product
	Update []Product
}

// Empty reports whether the change set has no writes.
func (c ChangeSet) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0
}

// SyncStats summarizes one reconciliation.
// Unchanged is tracked for logging but is not part of the wire contract.
type SyncStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
	Unchanged int `json:"-"`
}

// JobStatus is the lifecycle state reported with a SyncResult.
type JobStatus string

const (
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusRunning   JobStatus = "running"
	StatusCoalesced JobStatus = "coalesced"
)

// MaxReportedRowErrors caps the row errors echoed back in a SyncResult.
const MaxReportedRowErrors = 50

// SyncResult is the outcome of a sync job. Exactly one of Stats and Error
// is populated: Stats when Success, Error otherwise.
type SyncResult struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Stats     *SyncStats   `json:"stats,omitempty"`
	Error     string       `json:"error,omitempty"`
	Status    JobStatus    `json:"status,omitempty"`
	JobID     string       `json:"job_id,omitempty"`
	RowErrors []ParseError `json:"row_errors,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(stats SyncStats, message string) SyncResult {
	return SyncResult{
		Success: true,
		Message: message,
		Stats:   &stats,
		Status:  StatusCompleted,
	}
}

// Failed builds a failed result carrying a user-facing error message.
func Failed(message, errMsg string) SyncResult {
	return SyncResult{
		Success: false,
		Message: message,
		Error:   errMsg,
		Status:  StatusFailed,
	}
}

// SyncType is a sync channel.
type SyncType string

const (
	SyncTypeFile   SyncType = "file"
	SyncTypeSheets SyncType = "sheets"

	// SyncTypeAll selects every channel in remove and trigger requests.
	SyncTypeAll SyncType = "all"
)

// SyncTypes lists the concrete channels.
var SyncTypes = []SyncType{SyncTypeFile, SyncTypeSheets}

// Valid reports whether t is a concrete channel.
func (t SyncType) Valid() bool {
	return t == SyncTypeFile || t == SyncTypeSheets
}

// ScheduleType is the recurrence of a schedule.
type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleHourly ScheduleType = "hourly"
)

// ScheduleTypes lists the supported recurrences.
var ScheduleTypes = []ScheduleType{ScheduleDaily, ScheduleHourly}

// SlotKey identifies a schedule slot: one per tenant per channel.
type SlotKey struct {
	TenantID int64
	SyncType SyncType
}

func (k SlotKey) String() string {
	return fmt.Sprintf("restaurant_%d_%s", k.TenantID, k.SyncType)
}

// ScheduleDefinition is a persisted recurring sync.
// Source is a file path (or s3:// URI) for the file channel and a
// spreadsheet reference for the sheets channel.
type ScheduleDefinition struct {
	TenantID     int64        `json:"restaurant_id"`
	SyncType     SyncType     `json:"sync_type"`
	ScheduleType ScheduleType `json:"schedule_type"`
	ScheduleTime string       `json:"schedule_time"`
	Source       string       `json:"source"`
	LastSync     *time.Time   `json:"last_sync"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Slot returns the definition's identity.
func (d ScheduleDefinition) Slot() SlotKey {
	return SlotKey{TenantID: d.TenantID, SyncType: d.SyncType}
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
