package memory

import (
	"context"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/sheets"
)

var _ sheets.EntryMirror = (*Mirror)(nil)

// Mirror keeps ledger sheets in memory with the same layout the Google
// mirror writes. It backs the worker when no spreadsheet is configured.
type Mirror struct {
	mu     sync.Mutex
	base   string
	sheets map[string][][]any
	writes int
}

func New(base string) *Mirror {
	return &Mirror{base: base, sheets: make(map[string][][]any)}
}

// MirrorEntry writes e on the sheet of the year it was created.
func (m *Mirror) MirrorEntry(_ context.Context, e core.Entry, _ core.EntryOp) (string, error) {
	name := sheets.SheetName(m.base, e.CreatedAt.UTC().Year())

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.sheets[name]
	p, ok := sheets.Place(rows, e)
	if !ok {
		return p.Ref(name), nil
	}
	for i, v := range p.Values {
		idx := p.Row - 1 + i
		if idx < len(rows) {
			rows[idx] = v
		} else {
			rows = append(rows, v)
		}
	}
	m.sheets[name] = rows
	m.writes++
	return p.Ref(name), nil
}

// Rows returns a copy of the named sheet.
func (m *Mirror) Rows(sheet string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]any, len(m.sheets[sheet]))
	copy(out, m.sheets[sheet])
	return out
}

// Writes counts the mirror calls that changed a sheet.
func (m *Mirror) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
