package motion

import (
	"math"
	"time"

	"gotibia/world"
)

const (
	DefaultServerBeat = 50

	// Diagonal steps take this many times an orthogonal one: 3 on
	// protocols above DiagonalFactorVersion, 2 before.
	DiagonalFactorLegacy  = 2
	DiagonalFactor        = 3
	DiagonalFactorVersion = 810
)

// StepLaw converts creature speed and ground speed into step durations.
// The zero value is usable and behaves like a pre-speed-law server with a
// 50 ms beat.
type StepLaw struct {
	// ServerBeat is the server tick in milliseconds; durations are rounded
	// up to a multiple of it.
	ServerBeat int
	// A, B and C are the logarithmic speed formula sent at login by
	// servers with the new speed law. All three must be non-zero for the
	// formula to apply.
	A, B, C float64
	// Version is the protocol version; it selects the diagonal factor.
	Version int

	rev int
}

// SetServer installs the parameters received at login and invalidates the
// step caches built on the previous ones.
func (l *StepLaw) SetServer(beat int, a, b, c float64) {
	l.ServerBeat = beat
	l.A, l.B, l.C = a, b, c
	l.rev++
}

// Rev changes whenever SetServer is called.
func (l *StepLaw) Rev() int { return l.rev }

func (l *StepLaw) hasFormula() bool { return l.A != 0 && l.B != 0 && l.C != 0 }

func (l *StepLaw) beat() int {
	if l.ServerBeat <= 0 {
		return DefaultServerBeat
	}
	return l.ServerBeat
}

func (l *StepLaw) DiagonalFactor() int {
	if l.Version > DiagonalFactorVersion {
		return DiagonalFactor
	}
	return DiagonalFactorLegacy
}

// Interval is the duration of one orthogonal step. Speeds below 1 yield
// zero, which callers treat as an instant step.
func (l *StepLaw) Interval(groundSpeed, speed int) time.Duration {
	if speed < 1 {
		return 0
	}
	if groundSpeed <= 0 {
		groundSpeed = world.DefaultGroundSpeed
	}
	ms := 1000 * float64(groundSpeed)
	if l.hasFormula() {
		calc := 1.0
		if float64(speed*2) > -l.B {
			calc = math.Max(1, math.Floor(l.A*math.Log(float64(speed)+l.B)+l.C+0.5))
		}
		ms /= calc
	} else {
		ms /= float64(speed)
	}
	beat := l.beat()
	rounded := (int(ms) + beat - 1) / beat * beat
	return time.Duration(rounded) * time.Millisecond
}

// Duration is the step duration in direction dir.
func (l *StepLaw) Duration(groundSpeed, speed int, dir world.Direction) time.Duration {
	d := l.Interval(groundSpeed, speed)
	if dir.IsDiagonal() {
		d *= time.Duration(l.DiagonalFactor())
	}
	return d
}
