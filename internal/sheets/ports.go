package sheets

import (
	"context"

	"bilancio/internal/core"
)

// EntryMirror keeps a spreadsheet copy of the ledger. Mirroring the same
// entry twice updates its row in place.
type EntryMirror interface {
	MirrorEntry(ctx context.Context, e core.Entry, op core.EntryOp) (rowRef string, err error)
}
