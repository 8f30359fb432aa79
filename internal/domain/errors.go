package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreConnection marks any failure talking to the durable store.
	ErrStoreConnection = errors.New("store connection")
	// ErrLoadFailed is fatal: the cache could not be hydrated at startup.
	ErrLoadFailed = errors.New("cache load failed")
	// ErrFlushFailed is transient: dirty fields stay marked for the next cycle.
	ErrFlushFailed = errors.New("cache flush failed")

	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrNotFound        = errors.New("not found")
	ErrDelivery        = errors.New("delivery failed")

	ErrUnknownField = errors.New("unknown field")
	ErrFieldType    = errors.New("wrong value type for field")

	ErrInvalidTag     = errors.New("invalid tag")
	ErrInvalidTagName = fmt.Errorf("%w name", ErrInvalidTag)
	ErrTagExists      = errors.New("tag already exists")
	ErrTagIsAlias     = errors.New("tag is an alias")
	ErrNotTagOwner    = errors.New("tag belongs to another user")
)
