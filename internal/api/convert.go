package api

import (
	"time"

	"batchcursor/internal/iteration"
	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/state"
)

// ToRequest converts a transport request into a driver request. Mode and
// failure policy are passed through unparsed; the driver validates them.
func (r InvokeRequest) ToRequest() iteration.Request {
	return iteration.Request{
		Collection:    r.Collection,
		Lane:          r.Lane,
		Mode:          iteration.Mode(r.Mode),
		FailurePolicy: iteration.FailurePolicy(r.FailurePolicy),
		StartOffset:   r.StartOffset,
		Token:         r.Token,
	}
}

// FromRequest converts a driver request into its transport form.
func FromRequest(req iteration.Request) InvokeRequest {
	return InvokeRequest{
		Collection:    req.Collection,
		Lane:          req.Lane,
		Mode:          string(req.Mode),
		FailurePolicy: string(req.FailurePolicy),
		StartOffset:   req.StartOffset,
		Token:         req.Token,
	}
}

// FromResult converts a driver result to its API representation.
func FromResult(res iteration.Result) InvokeResult {
	dto := InvokeResult{
		Collection:    res.Collection,
		InvocationID:  res.InvocationID,
		BaseName:      res.BaseName,
		Format:        res.Format,
		DirName:       res.DirName,
		Offset:        res.Offset,
		Total:         res.Total,
		Status:        string(res.Status),
		BatchComplete: res.BatchComplete,
		Progress:      res.Progress,
		Signal:        string(res.Signal),
		SignalError:   res.SignalError,
		ElapsedMillis: millis(res.Elapsed),
	}
	if res.Item != nil {
		dto.ItemID = res.Item.ID
		dto.ItemPath = res.Item.Path
	}
	if len(res.Skipped) > 0 {
		dto.Skipped = make([]SkippedItem, 0, len(res.Skipped))
		for _, skipped := range res.Skipped {
			dto.Skipped = append(dto.Skipped, SkippedItem{
				Offset: skipped.Offset,
				ItemID: skipped.ItemID,
				Reason: skipped.Reason,
			})
		}
	}
	return dto
}

// NewInvokeResponse pairs a result with the invocation error, if any.
func NewInvokeResponse(res iteration.Result, err error) InvokeResponse {
	resp := InvokeResponse{Result: FromResult(res)}
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = iteration.Kind(err)
	}
	return resp
}

// FromRecord converts a stored cursor.
func FromRecord(rec state.Record) Record {
	return Record{
		Collection: rec.Key,
		Offset:     rec.Offset,
		Total:      rec.Total,
		Status:     string(rec.Status),
		UpdatedAt:  FormatTime(rec.UpdatedAt),
	}
}

// FromRecords converts a slice of stored cursors.
func FromRecords(records []state.Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromJob converts a scheduled job snapshot.
func FromJob(job scheduler.Job) Job {
	dto := Job{
		Token:       job.Token,
		Collection:  job.Request.Collection,
		Lane:        job.Request.Lane,
		State:       string(job.State),
		Invocations: job.Invocations,
		Error:       job.Error,
		ErrorKind:   job.ErrorKind,
		CreatedAt:   FormatTime(job.CreatedAt),
		UpdatedAt:   FormatTime(job.UpdatedAt),
	}
	if job.Last != nil {
		last := FromResult(*job.Last)
		dto.Last = &last
	}
	return dto
}

// FromJobs converts job snapshots, preserving order.
func FromJobs(jobs []scheduler.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromJobCounts produces a string-keyed representation of job counts.
func FromJobCounts(counts map[scheduler.JobState]int) map[string]int {
	out := make(map[string]int, len(counts))
	for jobState, count := range counts {
		out[string(jobState)] = count
	}
	return out
}

// FromLatency converts a latency snapshot.
func FromLatency(stats observer.LatencyStats) LatencyStats {
	return LatencyStats{
		Count: stats.Count,
		Min:   millis(stats.Min),
		Mean:  millis(stats.Mean),
		P50:   millis(stats.P50),
		P90:   millis(stats.P90),
		P99:   millis(stats.P99),
		Max:   millis(stats.Max),
	}
}

// FromLogEvents converts hub events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     FormatTime(evt.Timestamp),
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			Collection:    evt.Collection,
			Lane:          evt.Lane,
			ItemID:        evt.ItemID,
			InvocationID:  evt.InvocationID,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
