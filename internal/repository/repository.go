// Package repository provides the durable string-keyed stores that mirror the
// conversation state between runs.
package repository

import "context"

// KeyValue is the persistence medium contract: load an optional value, save
// a value, remove a key. Removing a missing key is not an error.
type KeyValue interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
