package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	EventsByChannel   map[log.Channel]int
	Methods           map[string]int
	Results           map[wire.Result]int
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	DeviceID     string
	RemoteAddr   string
	Channel      log.Channel
	RoundTrips   int
	RoundTripSum time.Duration
}

// MeanRoundTrip returns the average command round trip, or 0.
func (c *ConnectionStats) MeanRoundTrip() time.Duration {
	if c.RoundTrips == 0 {
		return 0
	}
	return c.RoundTripSum / time.Duration(c.RoundTrips)
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		EventsByChannel:   make(map[log.Channel]int),
		Methods:           make(map[string]int),
		Results:           make(map[wire.Result]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	s.EventsByChannel[event.Channel]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Channel:   event.Channel,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.DeviceID != "" && conn.DeviceID == "" {
		conn.DeviceID = event.DeviceID
	}
	if event.RemoteAddr != "" && conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}

	if m := event.Message; m != nil {
		if m.Type == log.MessageTypeCommand && m.Method != "" {
			s.Methods[m.Method]++
		}
		if m.Result != nil {
			s.Results[*m.Result]++
		}
		if m.RoundTrip != nil {
			conn.RoundTrips++
			conn.RoundTripSum += *m.RoundTrip
		}
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats prints statistics about path to w.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Yeelight Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Channel:")
	for _, ch := range []log.Channel{log.ChannelPrimary, log.ChannelDirect} {
		if count := stats.EventsByChannel[ch]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", ch.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Methods) > 0 {
		fmt.Fprintln(w, "Commands by Method:")
		methods := make([]string, 0, len(stats.Methods))
		for m := range stats.Methods {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		for _, m := range methods {
			fmt.Fprintf(w, "  %-20s %d\n", m+":", stats.Methods[m])
		}
		fmt.Fprintln(w)
	}

	if len(stats.Results) > 0 {
		fmt.Fprintln(w, "Responses by Result:")
		results := make([]wire.Result, 0, len(stats.Results))
		for r := range stats.Results {
			results = append(results, r)
		}
		sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
		for _, r := range results {
			fmt.Fprintf(w, "  %-20s %d\n", r.String()+":", stats.Results[r])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s %d events, duration %s\n",
				shortenConnID(c.id), c.stats.Channel, c.stats.Events, duration)
			if c.stats.DeviceID != "" || c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Device: %s %s\n", c.stats.DeviceID, c.stats.RemoteAddr)
			}
			if rtt := c.stats.MeanRoundTrip(); rtt > 0 {
				fmt.Fprintf(w, "           Mean round trip: %s over %d commands\n", formatDuration(rtt), c.stats.RoundTrips)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
