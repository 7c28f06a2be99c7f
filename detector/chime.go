package detector

import "time"

// Tone is one beep of an audio cue.
type Tone struct {
	// Frequency in hertz.
	Frequency float64
	// Offset from the start of the cue.
	Offset time.Duration
	// Duration of the tone.
	Duration time.Duration
}

const (
	chimeLowHz    = 880.0
	chimeHighHz   = 1320.0
	chimeToneLen  = 120 * time.Millisecond
	chimeToneStep = 150 * time.Millisecond
)

// AlertChime returns the two short ascending tones played on a new arrival.
func AlertChime() []Tone {
	return []Tone{
		{Frequency: chimeLowHz, Offset: 0, Duration: chimeToneLen},
		{Frequency: chimeHighHz, Offset: chimeToneStep, Duration: chimeToneLen},
	}
}
