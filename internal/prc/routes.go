package prc

import (
	"context"
	"math"
	"strconv"
)

// RouteServerStatus is the gate probe route name as recorded in
// snapshot rows.
const RouteServerStatus = "getServerStatus"

// Route pairs a snapshot route name with the client method that
// serves it. Fetch is a method expression, so the receiver comes first.
type Route struct {
	Name  string
	Fetch func(*Client, context.Context) (any, error)
}

// SecondaryRoutes are the nine fanout calls made when the gate probe
// reports activity. Order here is the dispatch order; completion order
// is whatever the per-tenant limiter allows.
var SecondaryRoutes = []Route{
	{Name: "getCommandLogs", Fetch: (*Client).CommandLogs},
	{Name: "getJoinLogs", Fetch: (*Client).JoinLogs},
	{Name: "getKillLogs", Fetch: (*Client).KillLogs},
	{Name: "getModCalls", Fetch: (*Client).ModCalls},
	{Name: "getPlayers", Fetch: (*Client).Players},
	{Name: "getQueue", Fetch: (*Client).Queue},
	{Name: "getStaff", Fetch: (*Client).Staff},
	{Name: "getVehicles", Fetch: (*Client).Vehicles},
	{Name: "getBans", Fetch: (*Client).Bans},
}

// CurrentPlayers extracts the current player count from a gate probe
// payload. Returns 0 when the field is absent, non-numeric, or
// non-finite; a zero result means the server session is idle.
func CurrentPlayers(payload any) float64 {
	obj, ok := payload.(map[string]any)
	if !ok {
		return 0
	}
	n, ok := coerceNumber(obj["CurrentPlayers"])
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
