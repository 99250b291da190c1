package fact

import "time"

// Digest is the terminal artifact of the pipeline: the validated,
// structured record for one invoice. Accepted syntheses are grouped by
// category; everything that did not make it into the authoritative
// fields (rejected, flagged, superseded, failed synthesis) is retained
// under Rejected with reasons so a reviewer has full provenance.
type Digest struct {
	SourceArtifactID string                     `json:"source_artifact_id"`
	Syntheses        map[CategoryID][]Synthesis `json:"syntheses"`
	Rejected         []ValidationResult         `json:"rejected,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
}

// Accepted returns the accepted syntheses for a category, in token order.
func (d *Digest) Accepted(id CategoryID) []Synthesis {
	return d.Syntheses[id]
}

// First returns the single accepted synthesis for a single-valued
// category, if present.
func (d *Digest) First(id CategoryID) (Synthesis, bool) {
	ss := d.Syntheses[id]
	if len(ss) == 0 {
		return Synthesis{}, false
	}
	return ss[0], true
}
