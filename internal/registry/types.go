package registry

// FieldValue is a scalar sensor attribute paired with the timestamp of the
// update that last wrote it. Per-field timestamps are what make out-of-order
// delivery safe: the registry always keeps the highest timestamp per field,
// regardless of which update kind carried the write.
type FieldValue struct {
	Value     any     `json:"value"`
	Timestamp float64 `json:"timestamp"`
}

// SensorRecord is the reconciled state of one sensor on one hub.
//
// BasicFields hold the minimal attributes carried by basic enumerations and
// delta updates. FullFields, when present, hold the complete metadata set
// fetched via sensors/poll; for keys present in both maps the values agree,
// because every field write is applied to both views under the same
// last-write-wins rule.
type SensorRecord struct {
	ID string `json:"id"`

	BasicFields map[string]FieldValue `json:"basic_fields"`

	// FullFields is nil until a full metadata snapshot has been seen.
	FullFields map[string]FieldValue `json:"full_fields,omitempty"`

	// LastBasicSeen is the timestamp of the newest basic or delta update
	// that named this sensor. Staleness is judged against it.
	LastBasicSeen float64 `json:"last_basic_seen"`

	// LastFullSeen is zero until a full metadata snapshot has been seen.
	LastFullSeen float64 `json:"last_full_seen,omitempty"`

	// Stale is set by MarkStaleIfDue and cleared by any newer update.
	Stale bool `json:"stale"`

	// Retain marks a sensor as intentionally long-lived: it survives
	// absence from a basic enumeration. Set when full metadata carries
	// a true "retain" attribute.
	Retain bool `json:"retain,omitempty"`
}

// DeepCopy returns a copy sharing no mutable state with the original.
func (s *SensorRecord) DeepCopy() *SensorRecord {
	out := *s
	out.BasicFields = copyFields(s.BasicFields)
	out.FullFields = copyFields(s.FullFields)
	return &out
}

func copyFields(in map[string]FieldValue) map[string]FieldValue {
	if in == nil {
		return nil
	}
	out := make(map[string]FieldValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// HubRegistry is the reconciled sensor set for one hub at one protocol
// version. It is a pure mutation engine: it performs no I/O and takes time
// as a parameter. Ownership and serialization of mutations belong to the
// caller (the coordinator runs one worker per hub); the registry itself is
// not safe for concurrent mutation.
type HubRegistry struct {
	HubID   string `json:"hub_id"`
	Version int    `json:"version"`

	Sensors map[string]*SensorRecord `json:"sensors"`

	// LastFullSync is the timestamp of the newest full snapshot applied,
	// zero if none has been seen yet.
	LastFullSync float64 `json:"last_full_sync,omitempty"`

	// LastBasicEnum is the timestamp of the newest basic enumeration
	// applied. Enumerations older than it cannot introduce sensors: a
	// newer enumeration has already ruled on presence, so final membership
	// stays the same whichever order the two arrive in.
	LastBasicEnum float64 `json:"last_basic_enum,omitempty"`

	// Generation increments on every mutation that changed state. An
	// update that changes nothing (redelivered duplicate) leaves it
	// untouched, so identical inputs always produce identical registries.
	Generation uint64 `json:"generation"`

	// MaxSensors bounds the sensor map. Zero means unbounded. Sensors
	// beyond the cap are dropped at admission and reported in the change
	// summary; the basic enumeration keeps membership converging.
	MaxSensors int `json:"-"`

	// RetainFull, when true, extends the long-lived policy to every
	// sensor that has full metadata, not just those flagged retain.
	RetainFull bool `json:"-"`
}

// NewHubRegistry creates an empty registry for a hub.
func NewHubRegistry(hubID string, version int) *HubRegistry {
	return &HubRegistry{
		HubID:   hubID,
		Version: version,
		Sensors: make(map[string]*SensorRecord),
	}
}

// DeepCopy returns a snapshot sharing no mutable state with the original.
// The coordinator uses it to serve reads without exposing the live registry.
func (r *HubRegistry) DeepCopy() *HubRegistry {
	out := *r
	out.Sensors = make(map[string]*SensorRecord, len(r.Sensors))
	for id, rec := range r.Sensors {
		out.Sensors[id] = rec.DeepCopy()
	}
	return &out
}

// SensorUpdate is one sensor's portion of an inbound update: its ID plus
// the fields the update carries (all known fields for basic, a subset for
// delta, the complete metadata set for full).
type SensorUpdate struct {
	ID     string
	Fields map[string]any
}

// ChangeSummary reports what a mutation did, for downstream notification
// and for the coordinator's re-sync decisions.
type ChangeSummary struct {
	Added     []string
	Updated   []string
	Unchanged []string
	Removed   []string

	// UnknownIDs lists delta targets absent from the registry. The
	// coordinator treats a non-empty list as a re-sync trigger.
	UnknownIDs []string

	// Dropped lists sensors refused admission by the MaxSensors cap.
	Dropped []string
}

// Changed reports whether the mutation altered registry state at all.
func (c ChangeSummary) Changed() bool {
	return len(c.Added) > 0 || len(c.Updated) > 0 || len(c.Removed) > 0
}
