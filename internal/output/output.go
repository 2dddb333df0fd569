// Package output provides styled terminal output helpers (success, error,
// warning, record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jvega/inventa/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	numberStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	syncStyles   = map[models.SyncStatus]lipgloss.Style{
		models.SyncPending: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SyncSynced:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.SyncError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// OutputMode determines output format
type OutputMode int

const (
	ModeShort OutputMode = iota
	ModeLong
	ModeJSON
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeNotLoggedIn   = "not_logged_in"
	ErrCodeDatabaseError = "database_error"
	ErrCodeSyncError     = "sync_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// FormatSyncStatus formats a record's sync status with color
func FormatSyncStatus(s models.SyncStatus) string {
	style, ok := syncStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatMoney renders a monetary amount with two decimals.
func FormatMoney(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// FormatQuantity trims trailing zeroes so whole counts print as integers.
func FormatQuantity(q float64) string {
	s := fmt.Sprintf("%.3f", q)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// FormatTimestamp renders an epoch-millisecond timestamp in local time.
func FormatTimestamp(ms int64) string {
	if ms == 0 {
		return subtleStyle.Render("never")
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

// ShortID returns the first 8 characters of an external id for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatClientShort formats a client record as a single line.
func FormatClientShort(rec models.Record, p models.ClientPayload) string {
	var b strings.Builder
	b.WriteString(subtleStyle.Render(ShortID(rec.ExternalID)))
	b.WriteString("  ")
	b.WriteString(titleStyle.Render(p.Name))
	if p.Phone != "" {
		b.WriteString("  " + subtleStyle.Render(p.Phone))
	}
	b.WriteString("  " + FormatSyncStatus(rec.Status))
	return b.String()
}

// FormatProductShort formats a product record as a single line.
func FormatProductShort(rec models.Record, p models.ProductPayload) string {
	var b strings.Builder
	b.WriteString(subtleStyle.Render(ShortID(rec.ExternalID)))
	b.WriteString("  ")
	b.WriteString(titleStyle.Render(p.Name))
	if p.SKU != "" {
		b.WriteString("  " + subtleStyle.Render(p.SKU))
	}
	b.WriteString(fmt.Sprintf("  %s/%s", FormatMoney(p.Cost), FormatMoney(p.SalePrice)))
	b.WriteString("  x" + FormatQuantity(p.Stock))
	b.WriteString("  " + FormatSyncStatus(rec.Status))
	return b.String()
}

// FormatSessionShort formats a counting session as a single line.
func FormatSessionShort(rec models.Record, p models.SessionPayload) string {
	var b strings.Builder
	b.WriteString(subtleStyle.Render(ShortID(rec.ExternalID)))
	b.WriteString("  ")
	if p.Number != "" {
		b.WriteString(numberStyle.Render(p.Number))
	} else {
		b.WriteString(subtleStyle.Render("(unnumbered)"))
	}
	state := p.State
	if state == "" {
		state = models.SessionInProgress
	}
	b.WriteString(fmt.Sprintf("  [%s]", state))
	if p.Totals.ProductsCounted > 0 {
		b.WriteString(fmt.Sprintf("  %d products, %s", p.Totals.ProductsCounted, FormatMoney(p.Totals.TotalValue)))
	}
	b.WriteString("  " + FormatSyncStatus(rec.Status))
	return b.String()
}

// FormatCountedItemShort formats one counted item as a single line.
func FormatCountedItemShort(rec models.Record, p models.CountedItemPayload) string {
	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(titleStyle.Render(p.ProductName))
	b.WriteString("  x" + FormatQuantity(p.Quantity))
	b.WriteString("  " + FormatMoney(p.TotalValue))
	if p.Notes != "" {
		b.WriteString("  " + subtleStyle.Render(p.Notes))
	}
	return b.String()
}

// SessionHeader renders the long-form header block for a session.
func SessionHeader(rec models.Record, p models.SessionPayload) string {
	var b strings.Builder
	number := p.Number
	if number == "" {
		number = "(unnumbered)"
	}
	b.WriteString(titleStyle.Render(number))
	b.WriteString("  " + subtleStyle.Render(rec.ExternalID))
	b.WriteString("\n")
	state := p.State
	if state == "" {
		state = models.SessionInProgress
	}
	b.WriteString(fmt.Sprintf("State: %s", state))
	if p.Date != "" {
		b.WriteString("  Date: " + p.Date)
	}
	if p.Totals.ProductsCounted > 0 {
		b.WriteString(fmt.Sprintf("\nCounted: %d products, total %s",
			p.Totals.ProductsCounted, FormatMoney(p.Totals.TotalValue)))
	}
	return b.String()
}
