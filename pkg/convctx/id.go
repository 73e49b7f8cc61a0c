package convctx

import (
	"strconv"
	"sync/atomic"
	"time"
)

var (
	processStamp = strconv.FormatInt(time.Now().UnixNano(), 16)
	idCounter    atomic.Uint64
)

// NewID returns a conversion identifier that is never reused within the
// process lifetime.
func NewID() string {
	return "conv_" + processStamp + "_" + strconv.FormatUint(idCounter.Add(1), 10)
}
