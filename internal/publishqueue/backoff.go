// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package publishqueue

import (
	"math"
	"time"
)

// Backoff is the retry delay policy: Base * 2^attempt, capped at Max, with
// attempt the attempt count after the failure. There is no jitter so the
// next eligible time is predictable.
type Backoff struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Minute, Max: time.Hour}
}

// Delay mirrors the interval PublishQueueMarkFailed computes in SQL.
func (b Backoff) Delay(attempt int32) time.Duration {
	secs := math.Min(b.baseSeconds()*math.Pow(2, float64(max(attempt, 0))), b.maxSeconds())
	return time.Duration(secs * float64(time.Second))
}

func (b Backoff) baseSeconds() float64 {
	if b.Base <= 0 {
		return DefaultBackoff().Base.Seconds()
	}
	return b.Base.Seconds()
}

func (b Backoff) maxSeconds() float64 {
	if b.Max <= 0 {
		return DefaultBackoff().Max.Seconds()
	}
	return b.Max.Seconds()
}
