package snapshot

import (
	"time"

	"waiterboard/domain/waiter"
)

const FileName = "snapshot.bin"

type Snapshot struct {
	// highest order ID seen when the snapshot was taken
	Seq      uint64
	Created  time.Time
	Settings waiter.Settings
	Orders   []waiter.Order
}
