package availability

import (
	"iter"
	"time"
)

// StepMinutes is the spacing between candidate start times.
const StepMinutes = 15

const Step = StepMinutes * time.Minute

// Grid describes evenly spaced instants Start, Start+Step, ... strictly before End.
type Grid struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

func NewGrid(start, end time.Time) Grid {
	return Grid{Start: start, End: end, Step: Step}
}

// All returns the grid instants. The sequence is finite and every call starts over.
func (g Grid) All() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if g.Step <= 0 {
			return
		}
		for t := g.Start; t.Before(g.End); t = t.Add(g.Step) {
			if !yield(t) {
				return
			}
		}
	}
}
