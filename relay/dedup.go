// SPDX-License-Identifier: ice License 1.0

package relay

import "github.com/puzpuzpuz/xsync/v3"

// Deduper tracks event ids already delivered through a subscription.
// Subscribe invokes its callback from one goroutine per endpoint, so the
// set tolerates concurrent marking of the same id: exactly one caller is
// told the id is new.
type Deduper struct {
	seen *xsync.MapOf[string, struct{}]
}

func NewDeduper() *Deduper {
	return &Deduper{seen: xsync.NewMapOf[string, struct{}]()}
}

// Seen marks the id and reports whether it had been marked before.
func (d *Deduper) Seen(id string) bool {
	_, loaded := d.seen.LoadOrStore(id, struct{}{})

	return loaded
}
