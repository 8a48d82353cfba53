package store

import (
	"context"
	"errors"
)

// KVStore is a durable key-value backend holding JSON blobs.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrDeserialization = errors.New("stored data is malformed")
	ErrUnknownDriver   = errors.New("unknown storage driver")
)
