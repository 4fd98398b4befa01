package rules

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a stable content hash of the rule set, used as the
// compiler cache key. encoding/json is canonical for this purpose: struct
// fields serialize in declaration order, slices keep their order, and map
// keys are sorted.
func (r TargetingRules) Fingerprint() string {
	blob, err := json.Marshal(r)
	if err != nil {
		// Rule documents are plain data (strings, numbers, slices, maps);
		// marshaling cannot fail for values that arrived via JSON. A
		// programmatically built document with an unmarshalable operand
		// still gets a distinct, stable fingerprint.
		return "unmarshalable:" + strconv.Itoa(len(r.Rules))
	}
	return strconv.FormatUint(xxhash.Sum64(blob), 16)
}

// ContextFingerprint returns a stable content hash of a user context map,
// used together with the rule-set fingerprint as the evaluation cache key.
func ContextFingerprint(context map[string]any) string {
	blob, err := json.Marshal(context)
	if err != nil {
		return "unmarshalable:" + strconv.Itoa(len(context))
	}
	return strconv.FormatUint(xxhash.Sum64(blob), 16)
}
