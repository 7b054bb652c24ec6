package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

// keepRecent snapshots sent unthinned on the first load of the balance stream.
const keepRecent = 100

func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		s.unavailable(w, "snapshot store")
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	firstLoad := lastIndex == 0
	sendSnapshots := func() error {
		records, err := s.deps.Snapshots.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		if firstLoad {
			records = thinRecords(records)
			firstLoad = false
		}
		for _, record := range records {
			if err := writeEvent(w, record.Index, "balance", record.Snapshot); err != nil {
				return err
			}
			lastIndex = record.Index
		}
		flusher.Flush()
		return nil
	}

	if err := sendSnapshots(); err != nil {
		s.logger.Warn("balance stream initial load", zap.Error(err))
		return
	}
	if lastIndex == 0 {
		fmt.Fprintf(w, "event: no_data\ndata: {}\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.logger.Warn("balance stream poll", zap.Error(err))
			}
		}
	}
}

func (s *Server) handlePositionStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Valuations == nil {
		s.unavailable(w, "positions")
		return
	}
	ch := s.deps.Valuations.Subscribe()
	defer s.deps.Valuations.Unsubscribe(ch)

	s.relay(w, r, "positions", func(yield func(any) bool) {
		for vs := range ch {
			if !yield(vs.List()) {
				return
			}
		}
	})
}

func (s *Server) handleDraftStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		s.unavailable(w, "drafts")
		return
	}
	ch := s.deps.Drafts.Subscribe()
	defer s.deps.Drafts.Unsubscribe(ch)

	s.relay(w, r, "quote", func(yield func(any) bool) {
		for res := range ch {
			if !yield(res) {
				return
			}
		}
	})
}

// relay forwards every value of a subscription as an SSE event until the client goes away
// or the subscription is closed.
func (s *Server) relay(w http.ResponseWriter, r *http.Request, event string, values func(yield func(any) bool)) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	out := make(chan any)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(out)
		values(func(v any) bool {
			select {
			case out <- v:
				return true
			case <-done:
				return false
			}
		})
	}()

	var id uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case v, open := <-out:
			if !open {
				return
			}
			id++
			if err := writeEvent(w, id, event, v); err != nil {
				s.logger.Warn("stream write", zap.String("event", event), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func writeEvent(w http.ResponseWriter, id uint64, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, payload)
	return err
}

// parseLastEventID reads the resume index from the Last-Event-ID header or the query.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// thinRecords keeps the most recent snapshots and exponentially thins the older history.
func thinRecords(records []domain.BalanceSnapshotRecord) []domain.BalanceSnapshotRecord {
	if len(records) <= keepRecent {
		return records
	}

	older := records[:len(records)-keepRecent]
	var thinned []domain.BalanceSnapshotRecord
	skip := 1
	for i := len(older) - 1; i >= 0; i-- {
		thinned = append(thinned, older[i])
		i -= skip
		// double the gap every 12 kept records
		if len(thinned)%12 == 0 {
			skip *= 2
		}
	}
	for l, r := 0, len(thinned)-1; l < r; l, r = l+1, r-1 {
		thinned[l], thinned[r] = thinned[r], thinned[l]
	}
	return append(thinned, records[len(records)-keepRecent:]...)
}
