package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/investbot/internal/db"
)

var eventsFlags struct {
	dbPath    string
	eventID   int64
	maxDepth  int
	jsonOut   bool
	noPayload bool
	turn      string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event journal as a tree",
	Long: `Renders the sqlite event journal written when INVESTBOT_EVENTS_DB is set.
Without --id the most recent process run is shown.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	f := eventsCmd.Flags()
	f.StringVar(&eventsFlags.dbPath, "db", "", "SQLite database path (default INVESTBOT_EVENTS_DB or ./investbot-events.db)")
	f.Int64Var(&eventsFlags.eventID, "id", 0, "show subtree of a specific event ID")
	f.IntVarP(&eventsFlags.maxDepth, "level", "L", 0, "limit display depth (0 = unlimited)")
	f.BoolVar(&eventsFlags.jsonOut, "json", false, "output JSON format")
	f.BoolVar(&eventsFlags.noPayload, "no-payload", false, "hide payload details")
	f.StringVar(&eventsFlags.turn, "turn", "", "only show messages whose turn_id contains this value, e.g. the short id from tree output")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, _ []string) error {
	dbPath := eventsFlags.dbPath
	if dbPath == "" {
		dbPath = os.Getenv("INVESTBOT_EVENTS_DB")
	}
	if dbPath == "" {
		dbPath = "./investbot-events.db"
	}

	database, err := db.OpenReadOnly(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	// Determine root event ID.
	rootID := eventsFlags.eventID
	if rootID == 0 {
		rootID, err = db.LatestProcessRoot(database)
		if err != nil {
			return fmt.Errorf("find process root: %w", err)
		}
	}

	events, err := db.QuerySubtree(database, rootID)
	if err != nil {
		return fmt.Errorf("query subtree: %w", err)
	}
	root := db.BuildTree(events, rootID)
	if root == nil {
		return fmt.Errorf("event %d not found", rootID)
	}

	roots := []*db.Event{root}
	if eventsFlags.turn != "" {
		roots = messagesForTurn(root, eventsFlags.turn)
		if len(roots) == 0 {
			return fmt.Errorf("no turn matching %q under event %d", eventsFlags.turn, rootID)
		}
	}

	out := cmd.OutOrStdout()
	if eventsFlags.jsonOut {
		return printJSON(out, roots, eventsFlags.maxDepth, eventsFlags.noPayload)
	}
	p := treePrinter{w: out, maxDepth: eventsFlags.maxDepth, noPayload: eventsFlags.noPayload}
	for _, r := range roots {
		p.root(r)
	}
	return nil
}

// payloadOf decodes an event payload; nil when absent or not an object.
func payloadOf(ev *db.Event) map[string]any {
	if !ev.Payload.Valid || ev.Payload.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ev.Payload.String), &m); err != nil {
		return nil
	}
	return m
}

func turnOf(ev *db.Event) string {
	id, _ := payloadOf(ev)["turn_id"].(string)
	return id
}

// messagesForTurn returns the events that own a child whose turn_id contains
// query, in id order. Dashes are ignored on both sides.
func messagesForTurn(root *db.Event, query string) []*db.Event {
	query = strings.ReplaceAll(query, "-", "")
	var found []*db.Event
	var walk func(ev *db.Event)
	walk = func(ev *db.Event) {
		for _, c := range ev.Children {
			if turn := turnOf(c); turn != "" && strings.Contains(strings.ReplaceAll(turn, "-", ""), query) {
				found = append(found, ev)
				return
			}
		}
		for _, c := range ev.Children {
			walk(c)
		}
	}
	walk(root)
	return found
}

type treePrinter struct {
	w         io.Writer
	maxDepth  int
	noPayload bool
}

func (p treePrinter) root(ev *db.Event) {
	fmt.Fprintln(p.w, formatEvent(ev, p.noPayload))
	p.children(ev, "", 1)
}

// children draws ev's children below it; depth is ev's depth, the root being 1.
func (p treePrinter) children(ev *db.Event, indent string, depth int) {
	if len(ev.Children) == 0 {
		return
	}
	if p.maxDepth > 0 && depth >= p.maxDepth {
		fmt.Fprintln(p.w, indent+"└── [...]")
		return
	}
	for i, c := range ev.Children {
		branch, next := "├── ", "│   "
		if i == len(ev.Children)-1 {
			branch, next = "└── ", "    "
		}
		fmt.Fprintln(p.w, indent+branch+formatEvent(c, p.noPayload))
		p.children(c, indent+next, depth+1)
	}
}

// formatEvent renders "[id] time  type  turn=xxxxxxxx  key=value ...". The
// turn id is shortened and latency_ms is shown as a duration.
func formatEvent(ev *db.Event, noPayload bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s  %s", ev.ID, time.Unix(ev.Timestamp, 0).UTC().Format(time.DateTime), ev.EventType)
	if noPayload {
		return b.String()
	}

	m := payloadOf(ev)
	if turn, ok := m["turn_id"].(string); ok {
		fmt.Fprintf(&b, "  turn=%s", shortTurn(turn))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "turn_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if ms, ok := m[k].(float64); ok && k == "latency_ms" {
			fmt.Fprintf(&b, "  latency=%s", time.Duration(ms)*time.Millisecond)
			continue
		}
		fmt.Fprintf(&b, "  %s=%s", k, formatValue(m[k]))
	}
	return b.String()
}

// shortTurn keeps the random tail of a UUIDv7 turn id; the leading
// timestamp bits repeat across turns from the same second.
func shortTurn(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// formatValue converts a payload value to a display string, quoting and
// cutting long text.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 80 {
			return fmt.Sprintf("%q", val[:80]+"...")
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type jsonEvent struct {
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	EventType string         `json:"event_type"`
	TurnID    string         `json:"turn_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Children  []jsonEvent    `json:"children,omitempty"`
}

func toJSONEvent(ev *db.Event, depth, maxDepth int, noPayload bool) jsonEvent {
	je := jsonEvent{
		ID:        ev.ID,
		Timestamp: ev.Timestamp,
		EventType: ev.EventType,
		TurnID:    turnOf(ev),
	}
	if !noPayload {
		je.Payload = payloadOf(ev)
	}
	if maxDepth == 0 || depth < maxDepth {
		for _, c := range ev.Children {
			je.Children = append(je.Children, toJSONEvent(c, depth+1, maxDepth, noPayload))
		}
	}
	return je
}

// printJSON writes a single object for one root and an array otherwise.
func printJSON(w io.Writer, roots []*db.Event, maxDepth int, noPayload bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	var v any
	if len(roots) == 1 {
		v = toJSONEvent(roots[0], 1, maxDepth, noPayload)
	} else {
		all := make([]jsonEvent, 0, len(roots))
		for _, r := range roots {
			all = append(all, toJSONEvent(r, 1, maxDepth, noPayload))
		}
		v = all
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
