// Package inject decides which received events the subscriber rejects.
//
// The default policy is deterministic: with N events and a failure rate r it
// rejects exactly the ids 1..floor(N*r), on every delivery attempt. A rejected
// id therefore stays rejected across redeliveries and ends up dead-lettered,
// which is what lets a run predict its own loss.
package inject

import (
	"errors"
	"math"
)

// ErrRejected is returned by the subscriber for an injected failure.
var ErrRejected = errors.New("delivery rejected by failure injector")

// Policy decides whether a delivery of id should be rejected.
type Policy interface {
	ShouldReject(id int) bool
}

// Threshold returns floor(total*failRate) with failRate clamped to [0,1].
func Threshold(total int, failRate float64) int {
	if total <= 0 || math.IsNaN(failRate) || failRate <= 0 {
		return 0
	}
	if failRate > 1 {
		failRate = 1
	}
	return int(math.Floor(float64(total) * failRate))
}

// ShouldReject reports whether id falls inside the rejected prefix.
func ShouldReject(id, total int, failRate float64) bool {
	return id <= Threshold(total, failRate)
}

// ThresholdPolicy is the default Policy.
type ThresholdPolicy struct {
	Total    int
	FailRate float64
}

func (p ThresholdPolicy) ShouldReject(id int) bool {
	return ShouldReject(id, p.Total, p.FailRate)
}

// Rejected lists the ids the policy rejects among 1..total, ascending.
func Rejected(p Policy, total int) []int {
	out := []int{}
	for id := 1; id <= total; id++ {
		if p.ShouldReject(id) {
			out = append(out, id)
		}
	}
	return out
}
