package command

import "time"

const (
	Repaint          ID = 0x2000
	InvertBackground ID = 0x2001
	WhiteBackground  ID = 0x2002
	PauseScanning    ID = 0x2003
	ResumeScanning   ID = 0x2004
	ScanNow          ID = 0x2005
	ScanFaster       ID = 0x2006
	ScanSlower       ID = 0x2007
)

// MinScanInterval is the floor for ScanFaster.
const MinScanInterval = 100 * time.Millisecond

var names = map[ID]string{
	Repaint:          "repaint",
	InvertBackground: "invert-background",
	WhiteBackground:  "white-background",
	PauseScanning:    "pause-scanning",
	ResumeScanning:   "resume-scanning",
	ScanNow:          "scan-now",
	ScanFaster:       "scan-faster",
	ScanSlower:       "scan-slower",
}

type Background int

const (
	Gradient Background = iota
	InvertedGradient
	White
)

func (b Background) String() string {
	switch b {
	case InvertedGradient:
		return "inverted"
	case White:
		return "white"
	default:
		return "gradient"
	}
}

// Display is presentation-only state. It is touched from the presentation
// goroutine only.
type Display struct {
	Background Background
}

// Updater is the coordinator side used by the repaint command.
type Updater interface {
	RequestUpdate()
}

// ScanControl is the part of the scanner commands may drive.
type ScanControl interface {
	Pause()
	Resume()
	Paused() bool
	ScanNow()
	Interval() time.Duration
	SetInterval(d time.Duration) error
}

type binding struct {
	id      ID
	action  Action
	enabled Predicate
}

// RegisterBuiltins binds the standard commands. scan may be nil, in which
// case the scanning commands are not registered.
func RegisterBuiltins(d *Dispatcher, updater Updater, display *Display, scan ScanControl) error {
	builtins := []binding{
		{Repaint, updater.RequestUpdate, nil},
		{InvertBackground, func() {
			if display.Background == InvertedGradient {
				display.Background = Gradient
			} else {
				display.Background = InvertedGradient
			}
			updater.RequestUpdate()
		}, nil},
		{WhiteBackground, func() {
			display.Background = White
			updater.RequestUpdate()
		}, nil},
	}
	if scan != nil {
		builtins = append(builtins,
			binding{PauseScanning, scan.Pause, func() bool { return !scan.Paused() }},
			binding{ResumeScanning, scan.Resume, scan.Paused},
			binding{ScanNow, scan.ScanNow, nil},
			binding{ScanFaster, func() {
				_ = scan.SetInterval(scan.Interval() / 2)
			}, func() bool { return scan.Interval()/2 >= MinScanInterval }},
			binding{ScanSlower, func() {
				_ = scan.SetInterval(scan.Interval() * 2)
			}, nil},
		)
	}

	for _, b := range builtins {
		if err := d.Register(b.id, b.action, b.enabled); err != nil {
			return err
		}
	}
	return nil
}
