package application

import (
	"context"
	"strings"

	"persona-gateway/internal/domain"
	"persona-gateway/internal/logger"
)

// deltaFolder turns cumulative snapshots into deltas. previous is the last
// text a token was emitted for.
type deltaFolder struct {
	previous string
}

// next returns the new suffix of text, or "" when nothing changed. A
// snapshot that does not extend previous is passed through whole.
func (f *deltaFolder) next(text string) string {
	var delta string
	if strings.HasPrefix(text, f.previous) {
		delta = text[len(f.previous):]
	} else {
		logger.Debug("non-monotonic snapshot, emitting whole text",
			"previous_len", len(f.previous), "snapshot_len", len(text))
		delta = text
	}
	if delta != "" {
		f.previous = text
	}
	return delta
}

// Relay converts an engine snapshot channel into a delta event channel
// terminated by exactly one done or error event. It stops reading from
// snapshots once ctx is done; in that case no terminal event is sent
// because nobody is listening.
func Relay(ctx context.Context, snapshots <-chan domain.Snapshot) <-chan domain.StreamDelta {
	out := make(chan domain.StreamDelta)

	go func() {
		defer close(out)

		send := func(d domain.StreamDelta) bool {
			select {
			case out <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var folder deltaFolder
		for {
			var (
				snap domain.Snapshot
				ok   bool
			)
			select {
			case snap, ok = <-snapshots:
			case <-ctx.Done():
				return
			}
			if !ok {
				send(domain.StreamDelta{Done: true})
				return
			}
			if snap.Err != nil {
				send(domain.StreamDelta{Error: snap.Err.Error()})
				return
			}
			if delta := folder.next(snap.Text); delta != "" {
				if !send(domain.StreamDelta{Token: delta}) {
					return
				}
			}
		}
	}()

	return out
}

// Rechunk simulates incremental delivery for engines with no native stream:
// it yields cumulative snapshots growing by size runes. The pacing is
// cosmetic and does not reflect generation progress.
func Rechunk(ctx context.Context, text string, size int) <-chan domain.Snapshot {
	if size <= 0 {
		size = 10
	}
	out := make(chan domain.Snapshot)

	go func() {
		defer close(out)
		runes := []rune(text)
		for end := size; ; end += size {
			if end > len(runes) {
				end = len(runes)
			}
			select {
			case out <- domain.Snapshot{Text: string(runes[:end])}:
			case <-ctx.Done():
				return
			}
			if end == len(runes) {
				return
			}
		}
	}()

	return out
}
