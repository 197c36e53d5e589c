package anomaly

type openRun struct {
	start int
	max   float64
	sum   float64
}

// Segment groups contiguous anomalous points of series into events. Runs
// shorter than minEventDuration are dropped; a run still open at the end of
// the series is closed and filtered the same way.
func Segment(series []ProcessedPoint, minEventDuration int) []Event {
	events := make([]Event, 0)
	var run *openRun

	for i, p := range series {
		if p.IsAnomaly {
			if run == nil {
				run = &openRun{start: i, max: p.Value}
			} else if p.Value > run.max {
				run.max = p.Value
			}
			run.sum += p.Value
			continue
		}
		if run != nil {
			if ev, ok := closeRun(series, run, i, minEventDuration); ok {
				events = append(events, ev)
			}
			run = nil
		}
	}

	if run != nil {
		if ev, ok := closeRun(series, run, len(series), minEventDuration); ok {
			events = append(events, ev)
		}
	}

	return events
}

// closeRun builds the event for run ending just before end.
func closeRun(series []ProcessedPoint, run *openRun, end, minEventDuration int) (Event, bool) {
	length := end - run.start
	if length < minEventDuration {
		return Event{}, false
	}
	return Event{
		StartTime: series[run.start].Timestamp,
		EndTime:   series[end-1].Timestamp,
		Duration:  length,
		MaxValue:  round2(run.max),
		AvgValue:  round2(run.sum / float64(length)),
	}, true
}
