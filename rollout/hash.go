// Package rollout provides deterministic user bucketing for percentage
// rollouts. It uses consistent hashing to assign users to buckets (0-99)
// based on their user ID and the rule ID. This ensures:
//   - Same user always gets the same decision for a rule (sticky rollout)
//   - Even distribution across buckets (xxHash)
//   - Stability across process restarts (pure function of rule ID + user ID)
//   - Safe progressive rollouts (raising 10% to 20% only adds users)
package rollout

import "github.com/cespare/xxhash/v2"

// Bucket returns a deterministic bucket (0-99) for the given user and rule.
// The same ruleID + userID combination always returns the same bucket.
// Returns -1 when userID is empty (no user context means no bucketing).
func Bucket(ruleID, userID string) int {
	if userID == "" {
		return -1
	}
	key := ruleID + ":" + userID
	return int(xxhash.Sum64String(key) % 100)
}

// Included reports whether a user falls inside a rule's rollout percentage.
//
// Algorithm:
//  1. Hash(ruleID + ":" + userID) → bucket (0-99)
//  2. Included iff bucket < percentage
//
// Special cases:
//   - percentage <= 0: always false (rule disabled for all)
//   - percentage >= 100: always true (no bucketing needed)
//   - userID == "": always false (anonymous users are excluded from
//     partial rollouts)
func Included(ruleID, userID string, percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	bucket := Bucket(ruleID, userID)
	return bucket >= 0 && bucket < percentage
}
