package port

import "context"

type IdempotencyGuard interface {
	// Acquire claims key. ok is false if the key is already held; token
	// names this claim for Release.
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)

	// Release frees key if it is still held under token, so a failed request
	// can be retried without touching a later claim
	Release(ctx context.Context, key, token string) error
}

type NopGuard struct{}

func (NopGuard) Acquire(context.Context, string) (string, bool, error) { return "", true, nil }

func (NopGuard) Release(context.Context, string, string) error { return nil }
