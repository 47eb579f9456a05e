package api

import (
	"encoding/json"
	"expvar"
	"net/http"
)

// DebugVarsEndpoint exposes the retry queue's completed, failed and
// exhausted counters, following
// the donor's expvar-based hostLoad handler. Additive: not part of §6's
// response shapes, purely ambient observability.
const DebugVarsEndpoint = "/debug/vars"

// QueueStats is the completion retry queue's counter snapshot, mirrored
// here to avoid api importing queue for a three-field struct.
type QueueStats struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Exhausted int64 `json:"exhausted"`
}

// queueStatsVar publishes the latest QueueStats under expvar's global
// registry, the same mechanism the donor's memstats/host_load entries use.
type queueStatsVar struct {
	provider func() QueueStats
}

func (v *queueStatsVar) String() string {
	provider := v.provider
	if provider == nil {
		return "{}"
	}
	b, err := json.Marshal(provider())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// WithQueueStats wires the completion retry queue's live counters into
// /debug/vars. Safe to call with nil; callers that never wire a provider
// still get a working (empty) debug endpoint.
func (a *API) WithQueueStats(provider func() QueueStats) *API {
	a.queueStats = &queueStatsVar{provider: provider}
	expvar.Publish("blobproxy_queue", a.queueStats)
	return a
}

// debugVars reports the wired QueueStats provider's snapshot in a typed
// JSON object under "queue"; no other expvar entry (cmdline, memstats) is
// included.
func (a *API) debugVars(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		Queue QueueStats `json:"queue"`
	}{}
	if a.queueStats != nil && a.queueStats.provider != nil {
		resp.Queue = a.queueStats.provider()
	}
	httpWriteJSON(w, resp)
}
