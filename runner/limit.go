package runner

import (
	"fmt"
	"time"
)

// Limit represents the resource limit enforced on the running process.
// Zero value of each field means unlimited.
type Limit struct {
	WallTime    time.Duration // real clock time limit, enforced by the monitor
	CPUTime     time.Duration // user + system CPU time limit, enforced by rlimit
	MemoryLimit Size          // peak resident memory limit (in bytes)
}

func (l Limit) String() string {
	return fmt.Sprintf("Limit[Wall=%v, CPU=%v, Memory=%v]", l.WallTime, l.CPUTime, l.MemoryLimit)
}
