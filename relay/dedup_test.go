// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeduperConcurrentMarking(t *testing.T) {
	t.Parallel()

	const (
		ids        = 50
		deliveries = 8
	)
	deduper := NewDeduper()
	var (
		fresh atomic.Int64
		wg    sync.WaitGroup
	)
	for delivery := 0; delivery < deliveries; delivery++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ix := 0; ix < ids; ix++ {
				if !deduper.Seen(fmt.Sprintf("event-%v", ix)) {
					fresh.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, ids, fresh.Load())
	require.True(t, deduper.Seen("event-0"))
	require.False(t, deduper.Seen("never-delivered"))
}
