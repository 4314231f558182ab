package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ProjectDocument is a project record as delivered by the lab information system
type ProjectDocument struct {
	ProjectName       string         `json:"project_name"`
	ProjectID         string         `json:"project_id"`
	CustomerReference string         `json:"customer_project_reference"`
	ReferenceGenome   string         `json:"reference_genome"`
	Contact           string         `json:"contact"`
	Details           ProjectDetails `json:"details"`
	Samples           SampleSet      `json:"samples"`

	raw map[string]any
}

// ProjectDetails holds the library preparation fields of a project
type ProjectDetails struct {
	LibraryConstructionMethod string `json:"library_construction_method"`
	LibraryPrepOption         string `json:"library_prep_option"`
	Organism                  string `json:"organism"`
	SingleCellHashing         string `json:"library_prep_option_single_cell_hashing"`
	SingleCellCite            string `json:"library_prep_option_single_cell_cite"`
	SingleCellVDJ             string `json:"library_prep_option_single_cell_vdj"`
	SingleCellFeature         string `json:"library_prep_option_single_cell_feature"`
}

// RawSample is one entry of a project's samples mapping
type RawSample struct {
	CustomerName string                 `json:"customer_name"`
	Details      SampleDetails          `json:"details"`
	LibraryPrep  map[string]LibraryPrep `json:"library_prep,omitempty"`
}

// SampleDetails holds per-sample metadata
type SampleDetails struct {
	ManualStatus string `json:"status_(manual)"`
}

// LibraryPrep lists the flowcells a library preparation was sequenced on
type LibraryPrep struct {
	SequencedFC []string `json:"sequenced_fc"`
}

// IsAborted reports whether the sample was manually aborted
func (s RawSample) IsAborted() bool {
	return strings.EqualFold(s.Details.ManualStatus, "aborted")
}

// Flowcells returns the flowcell ids of all library preps, ordered by prep id
func (s RawSample) Flowcells() []string {
	preps := make([]string, 0, len(s.LibraryPrep))
	for id := range s.LibraryPrep {
		preps = append(preps, id)
	}
	sort.Strings(preps)

	var flowcells []string
	for _, id := range preps {
		flowcells = append(flowcells, s.LibraryPrep[id].SequencedFC...)
	}
	return flowcells
}

// ParseProjectDocument decodes a project document, keeping the raw mapping
// for field-path checks
func ParseProjectDocument(data []byte) (*ProjectDocument, error) {
	var doc ProjectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode project document: %w", err)
	}
	if err := json.Unmarshal(data, &doc.raw); err != nil {
		return nil, fmt.Errorf("decode project document: %w", err)
	}
	return &doc, nil
}

// Raw returns the undecoded nested mapping of the document
func (d *ProjectDocument) Raw() map[string]any {
	return d.raw
}

// SampleSet is an ordered mapping from sample id to raw sample record.
// Decoding JSON keeps the order in which samples appear in the document.
type SampleSet struct {
	order []string
	byID  map[string]RawSample
}

// Add appends a sample, replacing the record if the id is already present
func (s *SampleSet) Add(id string, sample RawSample) {
	if s.byID == nil {
		s.byID = make(map[string]RawSample)
	}
	if _, ok := s.byID[id]; !ok {
		s.order = append(s.order, id)
	}
	s.byID[id] = sample
}

// Get returns the record for a sample id
func (s SampleSet) Get(id string) (RawSample, bool) {
	sample, ok := s.byID[id]
	return sample, ok
}

// IDs returns sample ids in insertion order
func (s SampleSet) IDs() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of samples
func (s SampleSet) Len() int {
	return len(s.order)
}

// UnmarshalJSON decodes a JSON object preserving key order
func (s *SampleSet) UnmarshalJSON(data []byte) error {
	*s = SampleSet{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("samples: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("samples: expected string key, got %v", tok)
		}
		var sample RawSample
		if err := dec.Decode(&sample); err != nil {
			return fmt.Errorf("samples: decode %q: %w", id, err)
		}
		s.Add(id, sample)
	}

	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the set as a JSON object in insertion order
func (s SampleSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(s.byID[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
