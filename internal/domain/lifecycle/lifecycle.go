// Package lifecycle holds timing constants shared by components that are
// started and stopped through fx hooks.
package lifecycle

import "time"

// DefaultTimeout bounds every start and stop hook.
const DefaultTimeout = 10 * time.Second
