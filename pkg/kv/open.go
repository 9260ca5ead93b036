package kv

import (
	"fmt"
	"log/slog"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
)

// Open creates a Store for driver. dir is used by the badger driver only.
func Open(driver, dir string, logger *slog.Logger) (Store, error) {
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverBadger, "":
		return NewBadger(BadgerOptions{Dir: dir, Logger: logger})
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", driver)
	}
}
