// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"errors"
	"time"
)

const (
	// DefaultRetryDelay is the initial delay between attempts
	DefaultRetryDelay = 200 * time.Millisecond
	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay = 5 * time.Second
)

// RetryPolicy controls re-invocation of a failed processor. The zero value
// disables retries.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	BaseDelay  time.Duration `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
	MaxDelay   time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
}

func (p RetryPolicy) normalized() RetryPolicy {
	q := p
	if q.MaxRetries < 0 {
		q.MaxRetries = 0
	}
	if q.BaseDelay <= 0 {
		q.BaseDelay = DefaultRetryDelay
	}
	if q.MaxDelay <= 0 {
		q.MaxDelay = MaxRetryDelay
	}
	if q.MaxDelay < q.BaseDelay {
		q.MaxDelay = q.BaseDelay
	}
	return q
}

// backoff returns the delay before retry number n (0-based).
func (p RetryPolicy) backoff(n int) time.Duration {
	if n > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay << uint(n)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Processors return it for
// failures such as invalid input that a retry cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
