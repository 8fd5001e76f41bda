// Package pacer paces and retries the calls made to a remote's API
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/safearchive/safearchive/fs"
	"golang.org/x/time/rate"
)

const defaultRetries = 10

// Pacer state
type Pacer struct {
	mu                 sync.Mutex    // Protecting read/writes
	minSleep           time.Duration // minimum sleep time
	maxSleep           time.Duration // maximum sleep time
	decayConstant      uint          // decay constant
	attackConstant     uint          // attack constant
	sleepTime          time.Duration // Time to sleep before the next call
	nextCall           time.Time     // earliest time the next call may start
	retries            int           // Max number of tries
	consecutiveRetries int           // number of consecutive retries
	limiter            *rate.Limiter // transactions per second limit, nil for none
}

// Paced is a function which is called by the Call and CallNoRetry
// methods.  It should return a boolean, true if it would like to be
// retried, and an error.  This error may be returned or returned
// wrapped in a RetryError.
type Paced func() (bool, error)

// Option configures a Pacer
type Option func(*Pacer)

// MinSleep sets the minimum sleep time between calls
func MinSleep(t time.Duration) Option {
	return func(p *Pacer) { p.minSleep = t }
}

// MaxSleep sets the maximum sleep time between calls
func MaxSleep(t time.Duration) Option {
	return func(p *Pacer) { p.maxSleep = t }
}

// DecayConstant sets how quickly the sleep time falls back to the
// minimum after errors. Bigger is slower.
func DecayConstant(decay uint) Option {
	return func(p *Pacer) { p.decayConstant = decay }
}

// AttackConstant sets how quickly the sleep time rises on a rate
// limit. 0 jumps straight to the maximum.
func AttackConstant(attack uint) Option {
	return func(p *Pacer) { p.attackConstant = attack }
}

// Retries sets the max number of tries for Call
func Retries(retries int) Option {
	return func(p *Pacer) { p.retries = retries }
}

// TPSLimit caps the calls started to tps per second with bursts of
// up to burst calls. A tps of 0 or less means no limit.
func TPSLimit(tps float64, burst int) Option {
	return func(p *Pacer) {
		if tps <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(tps), burst)
		fs.Debugf("pacer", "Limiting to %g transactions/s with burst %d", tps, burst)
	}
}

// New returns a Pacer with sensible defaults modified by opts
func New(opts ...Option) *Pacer {
	p := &Pacer{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
		retries:        defaultRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retries <= 0 {
		p.retries = 1
	}
	p.sleepTime = p.minSleep
	return p
}

// SleepTime returns the current sleep time
func (p *Pacer) SleepTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sleepTime
}

// beginCall waits until the pacer allows the next call or ctx is
// done
func (p *Pacer) beginCall(ctx context.Context) error {
	p.mu.Lock()
	wait := time.Until(p.nextCall)
	limiter := p.limiter
	p.mu.Unlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculatePace works out the new sleepTime with a truncated
// exponential attack and decay.
//
// Called with the lock held
func (p *Pacer) calculatePace(again bool) {
	oldSleepTime := p.sleepTime
	if again {
		if p.attackConstant == 0 {
			p.sleepTime = p.maxSleep
		} else {
			p.sleepTime = (p.sleepTime << p.attackConstant) / ((1 << p.attackConstant) - 1)
		}
		if p.sleepTime > p.maxSleep {
			p.sleepTime = p.maxSleep
		}
		if p.sleepTime != oldSleepTime {
			fs.Debugf("pacer", "Rate limited, increasing sleep to %v", p.sleepTime)
		}
	} else {
		p.sleepTime = (p.sleepTime<<p.decayConstant - p.sleepTime) >> p.decayConstant
		if p.sleepTime < p.minSleep {
			p.sleepTime = p.minSleep
		}
		if p.sleepTime != oldSleepTime {
			fs.Debugf("pacer", "Reducing sleep to %v", p.sleepTime)
		}
	}
}

// endCall records the outcome of a call and schedules the next one
func (p *Pacer) endCall(again bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if again {
		p.consecutiveRetries++
	} else {
		p.consecutiveRetries = 0
	}
	p.calculatePace(again)
	p.nextCall = time.Now().Add(p.sleepTime)
}

// call implements Call but with settable retries
func (p *Pacer) call(ctx context.Context, fn Paced, retries int) (err error) {
	var again bool
	for try := 1; try <= retries; try++ {
		if err := p.beginCall(ctx); err != nil {
			return err
		}
		again, err = fn()
		p.endCall(again)
		if !again {
			break
		}
		if try < retries {
			fs.Debugf("pacer", "low level retry %d/%d (error %v)", try, retries, err)
		}
	}
	if again {
		err = fs.RetryError(err)
	}
	return err
}

// Call paces the remote operations to not exceed the limits and retry
// on rate limit exceeded
//
// This calls fn, expecting it to return a retry flag and an
// error. This error may be returned wrapped in a RetryError if the
// number of retries is exceeded.
func (p *Pacer) Call(ctx context.Context, fn Paced) error {
	p.mu.Lock()
	retries := p.retries
	p.mu.Unlock()
	return p.call(ctx, fn, retries)
}

// CallNoRetry paces the remote operations to not exceed the limits
// and return a retry error on rate limit exceeded
//
// This calls fn and wraps the output in a RetryError if it would like
// it to be retried
func (p *Pacer) CallNoRetry(ctx context.Context, fn Paced) error {
	return p.call(ctx, fn, 1)
}
