package registry

import "sort"

// ApplyBasic applies an authoritative enumeration of the hub's currently
// present sensors. Presence is snapshot-based, not incremental: any sensor
// previously known but absent from the list is removed, unless the
// long-lived policy retains it. Field values merge last-write-wins by the
// update timestamp.
//
// A late-arriving enumeration older than a sensor's newest sighting never
// removes that sensor, and one older than the newest applied enumeration
// never introduces a sensor either: presence decisions, like field writes,
// respect timestamps, so two enumerations converge to the same membership
// whichever order they arrive in.
//
// Parameters:
//   - sensors: The full enumeration, each with its minimal field set
//   - ts: The update's timestamp (unix seconds)
//
// Returns:
//   - ChangeSummary: Added/Updated/Unchanged/Removed/Dropped sensor IDs
func (r *HubRegistry) ApplyBasic(sensors []SensorUpdate, ts float64) ChangeSummary {
	var summary ChangeSummary

	present := make(map[string]bool, len(sensors))
	for _, s := range sensors {
		present[s.ID] = true
	}

	for id, rec := range r.Sensors {
		if present[id] {
			continue
		}
		if rec.Retain || (r.RetainFull && rec.FullFields != nil) {
			continue
		}
		if ts <= rec.LastBasicSeen {
			// Enumeration predates the sensor's newest sighting.
			continue
		}
		delete(r.Sensors, id)
		summary.Removed = append(summary.Removed, id)
	}

	for _, s := range sensors {
		rec, ok := r.Sensors[s.ID]
		if !ok {
			if ts < r.LastBasicEnum {
				// A newer enumeration already ruled on presence; this
				// stale one cannot resurrect what it removed.
				continue
			}
			if r.MaxSensors > 0 && len(r.Sensors) >= r.MaxSensors {
				summary.Dropped = append(summary.Dropped, s.ID)
				continue
			}
			rec = &SensorRecord{
				ID:            s.ID,
				BasicFields:   make(map[string]FieldValue, len(s.Fields)),
				LastBasicSeen: ts,
			}
			for k, v := range s.Fields {
				rec.BasicFields[k] = FieldValue{Value: v, Timestamp: ts}
			}
			r.Sensors[s.ID] = rec
			summary.Added = append(summary.Added, s.ID)
			continue
		}

		changed := false
		for k, v := range s.Fields {
			if rec.mergeField(k, v, ts) {
				changed = true
			}
		}
		if ts > rec.LastBasicSeen {
			rec.LastBasicSeen = ts
			rec.Stale = false
			changed = true
		}
		if changed {
			summary.Updated = append(summary.Updated, s.ID)
		} else {
			summary.Unchanged = append(summary.Unchanged, s.ID)
		}
	}

	if ts > r.LastBasicEnum {
		r.LastBasicEnum = ts
	}
	if summary.Changed() {
		r.Generation++
	}
	return summary
}

// ApplyDelta applies incremental field changes to already-known sensors.
// A delta never creates a sensor: IDs absent from the registry are reported
// in UnknownIDs so the coordinator can request a re-sync.
//
// Parameters:
//   - changes: Per-sensor changed fields
//   - ts: The update's timestamp (unix seconds)
//
// Returns:
//   - ChangeSummary: Updated/Unchanged plus UnknownIDs for missing sensors
func (r *HubRegistry) ApplyDelta(changes []SensorUpdate, ts float64) ChangeSummary {
	var summary ChangeSummary

	for _, c := range changes {
		rec, ok := r.Sensors[c.ID]
		if !ok {
			summary.UnknownIDs = append(summary.UnknownIDs, c.ID)
			continue
		}

		changed := false
		for k, v := range c.Fields {
			if rec.mergeField(k, v, ts) {
				changed = true
			}
		}
		if ts > rec.LastBasicSeen {
			rec.LastBasicSeen = ts
			rec.Stale = false
			changed = true
		}
		if changed {
			summary.Updated = append(summary.Updated, c.ID)
		} else {
			summary.Unchanged = append(summary.Unchanged, c.ID)
		}
	}

	if summary.Changed() {
		r.Generation++
	}
	return summary
}

// ApplyFull applies a complete metadata snapshot for one sensor. Full
// metadata is authoritative enough to introduce a sensor the registry has
// never seen: an unknown ID gets a minimal record synthesized first.
//
// Keys present in both views are refined in both under the same
// last-write-wins rule, so basic and full views never disagree.
//
// Parameters:
//   - sensorID: The sensor the snapshot describes
//   - fullFields: The complete metadata set
//   - ts: The snapshot's timestamp (unix seconds)
//
// Returns:
//   - ChangeSummary: Added or Updated/Unchanged, Dropped if over the cap
func (r *HubRegistry) ApplyFull(sensorID string, fullFields map[string]any, ts float64) ChangeSummary {
	var summary ChangeSummary

	rec, ok := r.Sensors[sensorID]
	if !ok {
		if r.MaxSensors > 0 && len(r.Sensors) >= r.MaxSensors {
			summary.Dropped = append(summary.Dropped, sensorID)
			return summary
		}
		rec = &SensorRecord{
			ID:            sensorID,
			BasicFields:   make(map[string]FieldValue),
			LastBasicSeen: ts,
		}
		r.Sensors[sensorID] = rec
		summary.Added = append(summary.Added, sensorID)
	}

	changed := !ok
	if rec.FullFields == nil {
		rec.FullFields = make(map[string]FieldValue, len(fullFields))
		changed = true
	}

	for k, v := range fullFields {
		existing, exists := rec.FullFields[k]
		if !exists || ts > existing.Timestamp {
			rec.FullFields[k] = FieldValue{Value: v, Timestamp: ts}
			changed = true
		}
		if basic, exists := rec.BasicFields[k]; exists && ts > basic.Timestamp {
			rec.BasicFields[k] = FieldValue{Value: v, Timestamp: ts}
			changed = true
		}
	}

	if retain, isBool := fullFields["retain"].(bool); isBool && retain && !rec.Retain {
		rec.Retain = true
		changed = true
	}

	if ts >= rec.LastFullSeen {
		if rec.LastFullSeen != ts {
			rec.LastFullSeen = ts
			changed = true
		}
		if rec.Stale {
			rec.Stale = false
			changed = true
		}
	}
	if ts > r.LastFullSync {
		r.LastFullSync = ts
	}

	if !ok {
		// Synthesized record; already reported as Added.
	} else if changed {
		summary.Updated = append(summary.Updated, sensorID)
	} else {
		summary.Unchanged = append(summary.Unchanged, sensorID)
	}

	if summary.Changed() {
		r.Generation++
	}
	return summary
}

// mergeField applies one field write under last-write-wins. The write lands
// in BasicFields and, when the key also exists in FullFields, refines that
// view too. Timestamp equality short-circuits, which is what makes
// redelivered updates no-ops.
func (s *SensorRecord) mergeField(key string, value any, ts float64) bool {
	changed := false
	existing, ok := s.BasicFields[key]
	if !ok || ts > existing.Timestamp {
		s.BasicFields[key] = FieldValue{Value: value, Timestamp: ts}
		changed = true
	}
	if s.FullFields != nil {
		if full, ok := s.FullFields[key]; ok && ts > full.Timestamp {
			s.FullFields[key] = FieldValue{Value: value, Timestamp: ts}
			changed = true
		}
	}
	return changed
}

// MarkStaleIfDue flags every sensor whose newest basic sighting is older
// than the threshold. This is the registry's only time-driven transition
// and it takes now as a parameter, so it stays deterministic.
//
// Parameters:
//   - now: Current time (unix seconds)
//   - threshold: Maximum age of LastBasicSeen before a sensor is stale (seconds)
//
// Returns:
//   - []string: IDs of newly stale sensors, sorted
func (r *HubRegistry) MarkStaleIfDue(now, threshold float64) []string {
	var newlyStale []string
	for id, rec := range r.Sensors {
		if rec.Stale {
			continue
		}
		if now-rec.LastBasicSeen > threshold {
			rec.Stale = true
			newlyStale = append(newlyStale, id)
		}
	}
	if len(newlyStale) > 0 {
		sort.Strings(newlyStale)
		r.Generation++
	}
	return newlyStale
}

// StaleBeyond returns sensors whose newest basic sighting is older than the
// threshold, without mutating anything. The coordinator uses it with the
// longer force-refresh threshold to decide when to poll for full metadata.
//
// Returns:
//   - []string: Matching sensor IDs, sorted
func (r *HubRegistry) StaleBeyond(now, threshold float64) []string {
	var ids []string
	for id, rec := range r.Sensors {
		if now-rec.LastBasicSeen > threshold {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Sensor returns the record for a sensor ID, or false if unknown.
// The returned record is live registry state; callers outside the owning
// worker must use DeepCopy snapshots instead.
func (r *HubRegistry) Sensor(id string) (*SensorRecord, bool) {
	rec, ok := r.Sensors[id]
	return rec, ok
}

// SensorCount returns the number of sensors currently in the registry.
func (r *HubRegistry) SensorCount() int {
	return len(r.Sensors)
}
