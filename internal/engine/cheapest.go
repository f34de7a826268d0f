package engine

import "time"

type searchState int

const (
	stateSearching searchState = iota
	stateTrimming
	stateFound
	stateNotFound
)

// search holds the working state of one FindCheapest call
type search struct {
	series        Series
	req           SearchRequest
	nominal       time.Duration
	intervalCount int
	candidates    []Window
	best          int
	result        Window
}

// FindCheapest returns the contiguous window of req.Duration inside
// [req.RangeStart, req.RangeEnd] with the lowest time-weighted average price.
// It returns ErrNoWindow when no such window exists. The series is never
// modified; the returned window owns its points.
func FindCheapest(series Series, req SearchRequest) (Window, error) {
	if err := series.Validate(); err != nil {
		return Window{}, err
	}
	if err := req.Validate(); err != nil {
		return Window{}, err
	}

	s := newSearch(series, req)
	state := stateSearching
	for {
		switch state {
		case stateSearching:
			state = s.selectBest()
		case stateTrimming:
			state = s.trim()
		case stateFound:
			return s.result, nil
		case stateNotFound:
			return Window{}, ErrNoWindow
		}
	}
}

func newSearch(series Series, req SearchRequest) *search {
	nominal := series.NominalInterval()
	s := &search{
		series:        series,
		req:           req,
		nominal:       nominal,
		intervalCount: int((req.Duration + nominal - 1) / nominal),
	}
	s.candidates = s.collectCandidates()
	return s
}

// span is the whole-interval length covering the requested duration
func (s *search) span() time.Duration {
	return time.Duration(s.intervalCount) * s.nominal
}

// collectCandidates returns every window worth comparing, in chronological
// order: a window anchored at a misaligned range start, the whole-interval
// windows, and a window anchored at a misaligned range end.
func (s *search) collectCandidates() []Window {
	rangeStart, rangeEnd := s.req.RangeStart, s.req.RangeEnd
	startMisaligned := s.series.misaligned(rangeStart)
	endMisaligned := s.series.misaligned(rangeEnd)

	candidates := []Window{}
	add := func(w Window) {
		if w.Duration() >= s.req.Duration {
			candidates = append(candidates, w)
		}
	}

	var head Window
	haveHead := false
	if startMisaligned {
		to := rangeStart.Add(s.span())
		if to.After(rangeEnd) {
			to = rangeEnd
		}
		head, haveHead = s.series.spanWindow(rangeStart, to)
		if haveHead {
			add(head)
		}
	}

	for _, w := range BuildWindows(s.series, s.intervalCount, rangeStart, rangeEnd) {
		add(w)
	}

	if endMisaligned {
		from := rangeEnd.Add(-s.span())
		if from.Before(rangeStart) {
			from = rangeStart
		}
		// With both ends misaligned and a short range the head already
		// covers the whole range.
		if !haveHead || !from.Equal(head.Start()) {
			if tail, ok := s.series.spanWindow(from, rangeEnd); ok {
				add(tail)
			}
		}
	}

	return candidates
}

// selectBest picks the lowest average price. Candidates are in
// chronological order and strict comparison keeps the earliest on ties.
func (s *search) selectBest() searchState {
	if len(s.candidates) == 0 {
		return stateNotFound
	}

	s.best = 0
	for i, c := range s.candidates {
		if c.AveragePrice < s.candidates[s.best].AveragePrice {
			s.best = i
		}
	}
	return stateTrimming
}

// trim shortens the chosen window to the exact requested duration, cutting
// from the more expensive boundary. Equal boundary prices cut the tail.
func (s *search) trim() searchState {
	w := s.candidates[s.best].clone()

	excess := w.Duration() - s.req.Duration
	if excess > 0 {
		first, last := w.Points[0], w.Points[len(w.Points)-1]
		if first.Price > last.Price {
			w.Points = trimFront(w.Points, excess)
		} else {
			w.Points = trimBack(w.Points, excess)
		}
		w.AveragePrice = averagePrice(w.Points)
	}

	s.result = w
	return stateFound
}

// trimFront removes d from the start of the points. A point shorter than
// what is left to remove is dropped entirely.
func trimFront(points []PricePoint, d time.Duration) []PricePoint {
	for d > 0 && len(points) > 0 {
		head := &points[0]
		if head.Duration() <= d {
			d -= head.Duration()
			points = points[1:]
			continue
		}
		head.Start = head.Start.Add(d)
		d = 0
	}
	return points
}

// trimBack removes d from the end of the points
func trimBack(points []PricePoint, d time.Duration) []PricePoint {
	for d > 0 && len(points) > 0 {
		tail := &points[len(points)-1]
		if tail.Duration() <= d {
			d -= tail.Duration()
			points = points[:len(points)-1]
			continue
		}
		tail.End = tail.End.Add(-d)
		d = 0
	}
	return points
}

// misaligned reports whether t falls strictly inside one of the points
func (s Series) misaligned(t time.Time) bool {
	for _, p := range s {
		if p.Contains(t) {
			return true
		}
		if !p.Start.Before(t) {
			break
		}
	}
	return false
}

// spanWindow builds a window covering exactly [from, to) out of copies of
// the overlapping points. It fails when the series does not cover the span
// without gaps.
func (s Series) spanWindow(from, to time.Time) (Window, bool) {
	var points []PricePoint
	for _, p := range s {
		if p.End.After(from) && p.Start.Before(to) {
			points = append(points, p)
		}
	}
	if len(points) == 0 || !isContiguous(points) {
		return Window{}, false
	}
	if points[0].Start.After(from) || points[len(points)-1].End.Before(to) {
		return Window{}, false
	}

	points[0].Start = from
	points[len(points)-1].End = to
	return newWindow(points), true
}
