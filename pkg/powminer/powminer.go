// Package powminer implements the partial-preimage proof-of-work mining
// loop a challenge requires before a gated request (login, upload,
// dns-reg, report) is accepted: find a nonce such that
// SHA-256(challenge || nonce) has at least target_bits leading zero
// bits.
//
// The bit-counting and yielding shape is carried over from the original
// CLI's solver: calibrate first, then mine cooperatively, checking for
// cancellation every 1,000 attempts and yielding the scheduler every
// 10,000.
package powminer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	cancelCheckInterval = 1000
	yieldInterval       = 10000
	hardCeiling         = 600 * time.Second
)

// Progress is published periodically while a Solve call is in flight.
type Progress struct {
	HashesTried int64
	Elapsed     time.Duration
	Hashrate    float64
}

// Result is returned by a completed Solve call.
type Result struct {
	Nonce       uint64
	HashesTried int64
	Elapsed     time.Duration
	Hashrate    float64
}

// Miner holds the calibrated hash rate. Solve keeps no per-call state on
// the Miner, so concurrent Solve calls are not rejected and each runs
// independently.
type Miner struct {
	hashrate float64 // hashes/sec, from the last Calibrate call
}

// New returns a Miner with no calibration yet performed.
func New() *Miner {
	return &Miner{}
}

// Calibrate measures this machine's SHA-256 hash rate over duration and
// records it for Hashrate to return.
func (m *Miner) Calibrate(duration time.Duration) float64 {
	challenge := make([]byte, 16)
	_, _ = rand.Read(challenge)

	start := time.Now()
	var count int64
	var nonce uint64
	for time.Since(start) < duration {
		hashOnce(challenge, nonce)
		nonce++
		count++
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		elapsed = duration.Seconds()
	}
	m.hashrate = float64(count) / elapsed
	return m.hashrate
}

// Hashrate returns the most recently measured hash rate, or 0 if
// Calibrate has not run.
func (m *Miner) Hashrate() float64 {
	return m.hashrate
}

// Solve searches for a nonce whose SHA-256(challenge||nonce) digest has
// at least targetBits leading zero bits, reporting progress on
// progressCh roughly once a second. It stops at hardCeiling even if ctx
// is never cancelled, and returns ctx.Err() if ctx is cancelled first.
func (m *Miner) Solve(ctx context.Context, challenge []byte, targetBits int, progressCh chan<- Progress) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, hardCeiling)
	defer cancel()

	start := time.Now()
	lastReport := start
	var nonce uint64
	var tried int64

	for {
		if tried%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("pow solve cancelled after %d attempts: %w", tried, ctx.Err())
			default:
			}
		}

		digest := hashOnce(challenge, nonce)
		tried++

		if leadingZeroBits(digest) >= targetBits {
			elapsed := time.Since(start)
			rate := float64(tried) / elapsed.Seconds()
			return &Result{Nonce: nonce, HashesTried: tried, Elapsed: elapsed, Hashrate: rate}, nil
		}

		nonce++

		if tried%yieldInterval == 0 {
			time.Sleep(time.Millisecond)
		}

		if progressCh != nil && time.Since(lastReport) >= time.Second {
			lastReport = time.Now()
			elapsed := time.Since(start)
			select {
			case progressCh <- Progress{HashesTried: tried, Elapsed: elapsed, Hashrate: float64(tried) / elapsed.Seconds()}:
			default:
			}
		}
	}
}

func hashOnce(challenge []byte, nonce uint64) [32]byte {
	buf := make([]byte, len(challenge)+8)
	copy(buf, challenge)
	binary.BigEndian.PutUint64(buf[len(challenge):], nonce)
	return sha256.Sum256(buf)
}

// leadingZeroBits counts leading zero bits across the whole digest, not
// just whole zero bytes.
func leadingZeroBits(digest [32]byte) int {
	count := 0
	for _, b := range digest {
		if b == 0 {
			count += 8
			continue
		}
		for i := 7; i >= 0; i-- {
			if b&(1<<uint(i)) != 0 {
				return count
			}
			count++
		}
	}
	return count
}
