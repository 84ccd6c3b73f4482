// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"slices"
	"sync"
)

// NOTE: the fake platform is meant for development and tests only

type FakeClockDomain struct {
	name  string
	boot  uint32
	table []RateVolt

	mu   sync.Mutex
	rate uint32
	sets int
}

var _ ClockDomain = (*FakeClockDomain)(nil)

// NewFakeClockDomain returns a clock domain accepting only the rates in table
func NewFakeClockDomain(name string, boot uint32, table []RateVolt) *FakeClockDomain {
	return &FakeClockDomain{name: name, boot: boot, rate: boot, table: table}
}

func (c *FakeClockDomain) Name() string {
	return c.name
}

func (c *FakeClockDomain) SetRate(kHz uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !slices.ContainsFunc(c.table, func(rv RateVolt) bool { return rv.Rate == kHz }) {
		return fmt.Errorf("%s: unsupported rate %d kHz", c.name, kHz)
	}
	c.rate = kHz
	c.sets++
	return nil
}

func (c *FakeClockDomain) Rate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetCount returns the number of successful SetRate calls
func (c *FakeClockDomain) SetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *FakeClockDomain) BootRate() uint32 {
	return c.boot
}

func (c *FakeClockDomain) RateVoltTable() ([]RateVolt, error) {
	return slices.Clone(c.table), nil
}

// FakePowerDomain is an in-memory power rail with error injection
type FakePowerDomain struct {
	name string

	mu   sync.Mutex
	on   bool
	err  error
	ons  int
	offs int
}

var _ PowerDomain = (*FakePowerDomain)(nil)

func NewFakePowerDomain(name string, on bool) *FakePowerDomain {
	return &FakePowerDomain{name: name, on: on}
}

func (d *FakePowerDomain) Name() string {
	return d.name
}

// FailWith makes every following transition fail with err until cleared with nil
func (d *FakePowerDomain) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *FakePowerDomain) PowerOn() (bool, error) {
	return d.set(true)
}

func (d *FakePowerDomain) PowerOff() (bool, error) {
	return d.set(false)
}

func (d *FakePowerDomain) set(on bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrPowerDomain, d.name, d.err)
	}
	if d.on == on {
		return false, nil
	}
	d.on = on
	if on {
		d.ons++
	} else {
		d.offs++
	}
	return true, nil
}

func (d *FakePowerDomain) IsOn() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on, nil
}

// Transitions returns the number of off->on and on->off transitions
func (d *FakePowerDomain) Transitions() (ons, offs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ons, d.offs
}

// FakeQOS records the last vote of each class
type FakeQOS struct {
	mu    sync.Mutex
	votes map[QOSClass]int
	bts   bool
	count int
}

var _ QOSSink = (*FakeQOS)(nil)

func NewFakeQOS() *FakeQOS {
	return &FakeQOS{votes: map[QOSClass]int{}}
}

func (q *FakeQOS) Update(class QOSClass, kHz int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.votes[class] = kHz
	q.count++
}

func (q *FakeQOS) SetBTS(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bts = enabled
}

// Vote returns the last value voted for class
func (q *FakeQOS) Vote(class QOSClass) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.votes[class]
}

func (q *FakeQOS) BTS() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bts
}

// Updates returns the number of votes received
func (q *FakeQOS) Updates() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// FakeVoltage approximates the voltage of a rate on a typical mobile GPU rail
func FakeVoltage(kHz uint32) uint32 {
	return 550 + kHz/2500
}

// NewFakePlatform builds a platform whose clocks support exactly the given
// rates and boot at boot0/boot1. The GPU starts powered off.
func NewFakePlatform(rates0, rates1 []uint32, boot0, boot1 uint32, split bool) *Platform {
	p := &Platform{
		GPU0: NewFakeClockDomain("gpu0", boot0, fakeRateVolts(rates0)),
		GPU1: NewFakeClockDomain("gpu1", boot1, fakeRateVolts(rates1)),
		QOS:  NewFakeQOS(),
	}
	if split {
		p.Top = NewFakePowerDomain("top", false)
		p.Cores = NewFakePowerDomain("cores", false)
	} else {
		p.Top = NewFakePowerDomain("gpu", false)
	}
	return p
}

func fakeRateVolts(rates []uint32) []RateVolt {
	out := make([]RateVolt, 0, len(rates))
	for _, r := range rates {
		out = append(out, RateVolt{Rate: r, Volt: FakeVoltage(r)})
	}
	return out
}
