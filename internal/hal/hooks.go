package hal

import "io"

// Hooks are the optional board callbacks: the display watch block and
// ESD recovery. Calls are made with the device lock held.
type Hooks interface {
	// WatchRTCOn starts the watch clock after init.
	WatchRTCOn() error
	// WatchRTCClear runs after every reset.
	WatchRTCClear()
	// WatchCheck re-validates the watch configuration after init.
	WatchCheck() error
	// WatchInit re-arms the watch on entry to U2.
	WatchInit() error
	// WatchDisplayOff blanks the watch when U2_UNBLANK is left.
	WatchDisplayOff() error
	// ESDNotify reports a status word that looks like an ESD event.
	ESDNotify()
}

// NopHooks does nothing.
type NopHooks struct{}

func (NopHooks) WatchRTCOn() error      { return nil }
func (NopHooks) WatchRTCClear()         {}
func (NopHooks) WatchCheck() error      { return nil }
func (NopHooks) WatchInit() error       { return nil }
func (NopHooks) WatchDisplayOff() error { return nil }
func (NopHooks) ESDNotify()             {}

// Platform drives the reset, supply and interrupt lines. gpio.Lines and
// sim.Pins implement it.
type Platform interface {
	SetReset(high bool) error
	SetVDD(on bool) error
	SetVIO(on bool) error
	EnableIRQ(on bool)
}

type nopPlatform struct{}

func (nopPlatform) SetReset(bool) error { return nil }
func (nopPlatform) SetVDD(bool) error   { return nil }
func (nopPlatform) SetVIO(bool) error   { return nil }
func (nopPlatform) EnableIRQ(bool)      {}

// SelfTester runs the production self test and writes a text report.
type SelfTester interface {
	RunSelfTest(w io.Writer) error
}
