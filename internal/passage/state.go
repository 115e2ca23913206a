package passage

// State is the stage a request has reached.
type State int

const (
	StateParsed State = iota
	StateMetadataFresh
	StateMarkersResolved
	StateCacheHit
	StateRendered
	StateDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "PARSED"
	case StateMetadataFresh:
		return "METADATA_FRESH"
	case StateMarkersResolved:
		return "MARKERS_RESOLVED"
	case StateCacheHit:
		return "CACHE_HIT"
	case StateRendered:
		return "RENDERED"
	case StateDelivered:
		return "DELIVERED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
