package realtime

// Scope constants. A client subscribes to exactly one scope; the
// global scope receives everything.
const (
	ScopeGlobal = "global"
)

// EffortScope builds the scope string for one reporting effort.
func EffortScope(effortID string) string {
	return "effort:" + effortID
}

// StudyScope builds the scope string for one study.
func StudyScope(studyID string) string {
	return "study:" + studyID
}

// Event is one committed-mutation notification. Type follows the
// <entity>_<created|updated|deleted|copied> convention; Data is the
// payload pushed to clients verbatim.
type Event struct {
	Type  string      `json:"type"`
	Scope string      `json:"-"`
	Data  interface{} `json:"data"`
}

// outbound is the wire frame for both events and snapshots.
type outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// inbound is a client control frame.
type inbound struct {
	Action string `json:"action"`
}

const (
	actionRefresh = "refresh"
	actionPing    = "ping"
)
