package database

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// CalendarPriority lists the calendars biographies are read from, in the
// order they are presented to the pipeline.
var CalendarPriority = []string{
	"catholic",
	"Divino Afflatu - 1954",
	"Rubrics 1960 - 1960",
	"ordinariate",
}

// UpsertBiography inserts a biography or replaces the payload of the existing
// (date, calendar, name) record.
func (db *DB) UpsertBiography(b Biography) (int64, error) {
	if !json.Valid(b.Payload) {
		return 0, fmt.Errorf("biography %q: payload is not valid JSON", b.Name)
	}
	_, err := db.conn.Exec(
		`INSERT INTO biographies (date, calendar, name, religion, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, calendar, name) DO UPDATE SET
			religion = excluded.religion,
			payload = excluded.payload,
			imported_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		b.Date, b.Calendar, b.Name, b.Religion, string(b.Payload),
	)
	if err != nil {
		return 0, fmt.Errorf("upserting biography %q: %w", b.Name, err)
	}
	var id int64
	err = db.conn.QueryRow(
		"SELECT id FROM biographies WHERE date = ? AND calendar = ? AND name = ?",
		b.Date, b.Calendar, b.Name,
	).Scan(&id)
	return id, err
}

// GetBiographiesForDate returns the biographies for date from the calendars
// in CalendarPriority, ordered by that priority. A saint listed on several
// calendars appears once, under its highest-priority calendar.
func (db *DB) GetBiographiesForDate(date string) ([]Biography, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(CalendarPriority)), ",")
	args := []any{date}
	for _, c := range CalendarPriority {
		args = append(args, c)
	}

	rows, err := db.conn.Query(
		`SELECT id, date, calendar, name, religion, payload, imported_at
		FROM biographies WHERE date = ? AND calendar IN (`+placeholders+`)
		ORDER BY id`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byCalendar := make(map[string][]Biography)
	for rows.Next() {
		var (
			b       Biography
			payload string
		)
		if err := rows.Scan(&b.ID, &b.Date, &b.Calendar, &b.Name, &b.Religion, &payload, &b.ImportedAt); err != nil {
			return nil, err
		}
		b.Payload = json.RawMessage(payload)
		byCalendar[b.Calendar] = append(byCalendar[b.Calendar], b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var bios []Biography
	seen := make(map[string]bool)
	for _, cal := range CalendarPriority {
		for _, b := range byCalendar[cal] {
			key := strings.ToLower(strings.TrimSpace(b.Name))
			if seen[key] {
				continue
			}
			seen[key] = true
			bios = append(bios, b)
		}
	}
	return bios, nil
}

// PromptData returns the biography as a JSON-ready map for AI prompts. HTML
// markup in string fields is reduced to plain text.
func (b Biography) PromptData() map[string]any {
	data := map[string]any{}
	if len(b.Payload) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(b.Payload, &payload); err == nil {
			for k, v := range payload {
				data[k] = stripMarkup(v)
			}
		}
	}
	data["name"] = b.Name
	data["calendar"] = b.Calendar
	data["religion"] = b.Religion
	data["date"] = b.Date
	return data
}

func stripMarkup(v any) any {
	switch val := v.(type) {
	case string:
		return PlainText(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = stripMarkup(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = stripMarkup(item)
		}
		return out
	default:
		return v
	}
}

// PlainText reduces an HTML fragment to whitespace-normalized text. Strings
// without markup are returned unchanged.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	doc.Find("br, p, li, div").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// CountBiographies returns the number of biographies stored for date.
func (db *DB) CountBiographies(date string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM biographies WHERE date = ?", date).Scan(&n)
	return n, err
}

// importRecord is one entry of a biography import file.
type importRecord struct {
	Date      string          `json:"date"`
	Calendar  string          `json:"calendar"`
	Name      string          `json:"name"`
	Religion  string          `json:"religion"`
	Biography json.RawMessage `json:"biography"`
}

// DecodeBiographies reads a JSON array of {date, calendar, name, religion,
// biography} records. Religion defaults to catholic.
func DecodeBiographies(r io.Reader) ([]Biography, error) {
	var records []importRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding biographies: %w", err)
	}

	bios := make([]Biography, 0, len(records))
	for i, rec := range records {
		if _, err := time.Parse("2006-01-02", rec.Date); err != nil {
			return nil, fmt.Errorf("record %d: date %q is not YYYY-MM-DD", i, rec.Date)
		}
		if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.Calendar) == "" {
			return nil, fmt.Errorf("record %d: name and calendar are required", i)
		}
		religion := rec.Religion
		if religion == "" {
			religion = "catholic"
		}
		payload := rec.Biography
		if len(payload) == 0 || string(payload) == "null" {
			payload = json.RawMessage("{}")
		}
		bios = append(bios, Biography{
			Date:     rec.Date,
			Calendar: rec.Calendar,
			Name:     strings.TrimSpace(rec.Name),
			Religion: religion,
			Payload:  payload,
		})
	}
	return bios, nil
}
