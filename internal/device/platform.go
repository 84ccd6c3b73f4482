// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package device defines the hardware capabilities the DVFS and power
// controllers depend on: clock domains, power domains and platform QOS.
package device

import "errors"

// ErrPowerDomain is returned by power domains that fail a transition
var ErrPowerDomain = errors.New("power domain error")

// RateVolt pairs a clock rate (kHz) with the voltage (mV) the platform
// programs for it.
type RateVolt struct {
	Rate uint32
	Volt uint32
}

// ClockDomain is a GPU clock whose rate can be programmed
type ClockDomain interface {
	Name() string
	// SetRate programs the clock to kHz
	SetRate(kHz uint32) error
	// Rate returns the currently programmed rate in kHz
	Rate() uint32
	// BootRate returns the rate the clock was left at by the bootloader
	BootRate() uint32
	// RateVoltTable returns the rates supported by the domain and their voltages
	RateVoltTable() ([]RateVolt, error)
}

// PowerDomain is a switchable GPU power rail. PowerOn and PowerOff report
// whether the call changed the domain state; a domain already in the
// requested state returns false and no error.
type PowerDomain interface {
	Name() string
	PowerOn() (bool, error)
	PowerOff() (bool, error)
	IsOn() (bool, error)
}

// QOSClass identifies a platform QOS request
type QOSClass int

const (
	QOSINTMin QOSClass = iota
	QOSMIFMin
	QOSCPU0Min
	QOSCPU1Min
	QOSCPU2Max
)

func (c QOSClass) String() string {
	switch c {
	case QOSINTMin:
		return "int_min"
	case QOSMIFMin:
		return "mif_min"
	case QOSCPU0Min:
		return "cpu0_min"
	case QOSCPU1Min:
		return "cpu1_min"
	case QOSCPU2Max:
		return "cpu2_max"
	default:
		return "unknown"
	}
}

// QOSSink receives QOS votes. Votes are fire and forget.
type QOSSink interface {
	Update(class QOSClass, kHz int)
	// SetBTS enables or disables the GPU bus traffic shaping scenario
	SetBTS(enabled bool)
}

// Platform bundles the capabilities of one GPU. Cores is nil when the GPU
// has a single power domain.
type Platform struct {
	GPU0  ClockDomain
	GPU1  ClockDomain
	Top   PowerDomain
	Cores PowerDomain
	QOS   QOSSink
}
