package core

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"
)

// NewID returns a fresh, time-ordered transaction id.
func NewID() string {
	return ulid.Make().String()
}

// LegacyID derives a stable id for a stored row that predates the id column.
// ordinal distinguishes identical rows.
func LegacyID(cells []string, ordinal int) string {
	h := xxhash.New()
	_, _ = h.WriteString(strings.Join(cells, "\x1f"))
	_, _ = h.WriteString("\x1e" + strconv.Itoa(ordinal))
	return "L" + strconv.FormatUint(h.Sum64(), 36)
}
