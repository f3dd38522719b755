package sheets

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// Columns of the ledger sheet, A to H.
const (
	colDate = iota
	colEntryID
	colUser
	colKind
	colCategory
	colDescription
	colAmount
	colStatus
	numCols
)

const (
	DefaultSheetName = "Ledger"
	LastColumn       = "H"

	statusActive = "active"
	statusVoided = "voided"
	dateLayout   = "2006-01-02"
)

// Header is written on the first row of an empty ledger sheet.
var Header = []any{"Date", "Entry ID", "User", "Kind", "Category", "Description", "Amount", "Status"}

// SheetName returns "<year> <base>" unless base already starts with a 4-digit year.
func SheetName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultSheetName
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// EntryRow lays an entry out as one sheet row. The amount is signed by its
// effect on the balance.
func EntryRow(e core.Entry) []any {
	status := statusActive
	if e.Voided {
		status = statusVoided
	}
	return []any{
		e.CreatedAt.UTC().Format(dateLayout),
		e.ID,
		e.Owner,
		string(e.Kind),
		e.Category,
		e.Description,
		e.Kind.Effect(e.Amount).Decimal().StringFixed(2),
		status,
	}
}

// ParseEntryRow reads back a row written by EntryRow. Only the day of
// CreatedAt survives the round trip.
func ParseEntryRow(row []any) (core.Entry, bool) {
	cols := toStrings(row)
	if len(cols) < numCols || cols[colEntryID] == "" {
		return core.Entry{}, false
	}
	day, err := time.Parse(dateLayout, cols[colDate])
	if err != nil {
		return core.Entry{}, false
	}
	kind, err := core.ParseKind(cols[colKind])
	if err != nil {
		return core.Entry{}, false
	}
	cents, ok := parseEurosToCents(cols[colAmount])
	if !ok {
		return core.Entry{}, false
	}
	if cents < 0 {
		cents = -cents
	}
	return core.Entry{
		ID:          cols[colEntryID],
		Owner:       cols[colUser],
		Kind:        kind,
		Category:    cols[colCategory],
		Amount:      core.Cents(cents),
		Description: cols[colDescription],
		CreatedAt:   day.UTC(),
		Voided:      strings.EqualFold(cols[colStatus], statusVoided),
	}, true
}

// Placement tells where an entry goes in a sheet and what to write there.
type Placement struct {
	// Row is the 1-based row of the first line in Values.
	Row    int
	Values [][]any
}

// LastRow is the row the entry itself lands on.
func (p Placement) LastRow() int {
	return p.Row + len(p.Values) - 1
}

// Range returns the A1 range covering the placement on sheet.
func (p Placement) Range(sheet string) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, p.Row, LastColumn, p.LastRow())
}

// Ref returns the A1 range of the entry's own row.
func (p Placement) Ref(sheet string) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, p.LastRow(), LastColumn, p.LastRow())
}

// Place finds the row for e among the existing sheet values. An entry already
// on the sheet keeps its row; a new one goes after the last row, preceded by
// the header when the sheet is empty. ok is false when the existing row
// already matches e and nothing needs to be written.
func Place(existing [][]any, e core.Entry) (p Placement, ok bool) {
	row := EntryRow(e)
	if i := findEntry(existing, e.ID); i >= 0 {
		if cur, parsed := ParseEntryRow(existing[i]); parsed && sameEntry(cur, e) {
			return Placement{Row: i + 1, Values: [][]any{row}}, false
		}
		return Placement{Row: i + 1, Values: [][]any{row}}, true
	}
	if len(existing) == 0 {
		return Placement{Row: 1, Values: [][]any{Header, row}}, true
	}
	return Placement{Row: len(existing) + 1, Values: [][]any{row}}, true
}

func findEntry(values [][]any, id string) int {
	for i, r := range values {
		if len(r) > colEntryID && strings.TrimSpace(fmt.Sprint(r[colEntryID])) == id {
			return i
		}
	}
	return -1
}

func sameEntry(a, b core.Entry) bool {
	y1, m1, d1 := a.CreatedAt.UTC().Date()
	y2, m2, d2 := b.CreatedAt.UTC().Date()
	return a.ID == b.ID &&
		a.Owner == b.Owner &&
		a.Kind == b.Kind &&
		a.Category == b.Category &&
		a.Description == b.Description &&
		a.Amount == b.Amount &&
		a.Voided == b.Voided &&
		y1 == y2 && m1 == m2 && d1 == d2
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// parseEurosToCents accepts sheet-formatted amounts such as "12.50",
// "-12,5" or "€ 1,234.00".
func parseEurosToCents(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "€", ""))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.Shift(2).Round(0).IntPart(), true
}
