// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import "time"

const (
	rttAlpha = 0.125
	rttBeta  = 0.25
)

// rttEstimator keeps an exponentially weighted moving average of the round-trip time and its deviation.
type rttEstimator struct {
	estimated time.Duration
	deviation time.Duration
	rto       time.Duration
	samples   int
}

func newRTTEstimator(initial time.Duration) rttEstimator {
	return rttEstimator{
		estimated: initial,
		rto:       initial,
	}
}

// Sample updates the estimation with a newly measured round-trip time.
func (r *rttEstimator) Sample(sample time.Duration) {
	r.estimated = time.Duration((1-rttAlpha)*float64(r.estimated) + rttAlpha*float64(sample))

	diff := sample - r.estimated
	if diff < 0 {
		diff = -diff
	}
	r.deviation = time.Duration((1-rttBeta)*float64(r.deviation) + rttBeta*float64(diff))

	r.rto = r.estimated + 4*r.deviation
	r.samples++
}

// RTO is the current retransmission timeout.
func (r rttEstimator) RTO() time.Duration {
	return r.rto
}

// RetransmitAfter is the age of an unacknowledged segment after which it is sent again.
func (r rttEstimator) RetransmitAfter(ceiling time.Duration) time.Duration {
	if threshold := 3 * r.rto; threshold < ceiling {
		return threshold
	}
	return ceiling
}
