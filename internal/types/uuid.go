package types

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	UUID_PREFIX_BUSINESS     = "biz"
	UUID_PREFIX_ACTIVITY_LOG = "act"
	UUID_PREFIX_PLAN         = "plan"
	UUID_PREFIX_REQUEST      = "req"
)

// GenerateUUID returns a lowercase, time-sortable ULID.
func GenerateUUID() string {
	return strings.ToLower(ulid.Make().String())
}

// GenerateUUIDWithPrefix returns a prefixed id such as biz_01hv...
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return prefix + "_" + GenerateUUID()
}
