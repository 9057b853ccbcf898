package version

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// Checksum hashes a payload into a short hex digest. Map keys are visited in
// sorted order, so two payloads with identical key/value pairs hash
// identically regardless of insertion order.
func Checksum(payload change.Payload) string {
	h := xxhash.New()
	writeCanonical(h, map[string]any(payload))
	return strconv.FormatUint(h.Sum64(), 16)
}

func writeCanonical(h *xxhash.Digest, v any) {
	switch t := v.(type) {
	case nil:
		_, _ = h.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_, _ = h.WriteString("{")
		for _, k := range keys {
			_, _ = h.WriteString(k)
			_, _ = h.WriteString("=")
			writeCanonical(h, t[k])
			_, _ = h.WriteString(";")
		}
		_, _ = h.WriteString("}")
	case change.Payload:
		writeCanonical(h, map[string]any(t))
	case []any:
		_, _ = h.WriteString("[")
		for _, e := range t {
			writeCanonical(h, e)
			_, _ = h.WriteString(",")
		}
		_, _ = h.WriteString("]")
	case string:
		_, _ = h.WriteString(strconv.Quote(t))
	case time.Time:
		_, _ = h.WriteString(t.UTC().Format(time.RFC3339Nano))
	default:
		_, _ = h.WriteString(fmt.Sprintf("%v", t))
	}
}
