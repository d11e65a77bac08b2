package matchmaking

import (
	"context"
	"time"
)

// Hooks are invoked by the pairing engine around a commit. Implementations
// may block (e.g. scripted priming messages); the engine runs both sides
// concurrently.
type Hooks interface {
	PreMatch(ctx context.Context, userID int64) error
	PostMatch(ctx context.Context, userID int64) error
}

// NopHooks does nothing.
type NopHooks struct{}

func (NopHooks) PreMatch(context.Context, int64) error  { return nil }
func (NopHooks) PostMatch(context.Context, int64) error { return nil }

// HookFuncs adapts plain functions to Hooks. Nil funcs are skipped.
type HookFuncs struct {
	Pre  func(ctx context.Context, userID int64) error
	Post func(ctx context.Context, userID int64) error
}

func (h HookFuncs) PreMatch(ctx context.Context, userID int64) error {
	if h.Pre == nil {
		return nil
	}
	return h.Pre(ctx, userID)
}

func (h HookFuncs) PostMatch(ctx context.Context, userID int64) error {
	if h.Post == nil {
		return nil
	}
	return h.Post(ctx, userID)
}

// Notice identifies a user-facing message; the transport decides the wording.
type Notice string

const (
	NoticeEvictedInactive Notice = "queue_evicted_inactive"
	NoticeDisconnected    Notice = "disconnected"
	NoticePartnerLeft     Notice = "partner_disconnected"
)

// Notifier delivers notices to users. Delivery is best-effort: callers log
// failures and carry on.
type Notifier interface {
	Notify(ctx context.Context, userID int64, notice Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, userID int64, notice Notice) error

func (f NotifierFunc) Notify(ctx context.Context, userID int64, notice Notice) error {
	return f(ctx, userID, notice)
}

// SessionLog persists the history of committed matches.
type SessionLog interface {
	RecordSession(ctx context.Context, u1, u2 int64, at time.Time) error
	CloseSession(ctx context.Context, userID int64, at time.Time) error
}
