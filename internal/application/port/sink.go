package port

import "time"

// Sink 看板输出端口：实时行覆盖重画，快照行追加保留
type Sink interface {
	// Live line: overwrite last line (no newline)
	WriteLive(line string) error
	// Snapshot line: append a historical line with timestamp, leave an empty line for future live updates
	WriteSnapshot(ts time.Time, line string) error
	// Normal newline (for logs)
	NewLine() error
}
