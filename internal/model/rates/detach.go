package rates

import (
	"context"
	"time"
)

// detachedContext keeps the values of its parent, the tracing span among
// them, but is never cancelled.
type detachedContext struct {
	parent context.Context
}

func detach(ctx context.Context) context.Context {
	return detachedContext{parent: ctx}
}

func (detachedContext) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

func (detachedContext) Done() <-chan struct{} {
	return nil
}

func (detachedContext) Err() error {
	return nil
}

func (c detachedContext) Value(key interface{}) interface{} {
	return c.parent.Value(key)
}
