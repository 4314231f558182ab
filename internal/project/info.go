// Package project turns a project document into the normalized metadata the
// orchestrator works with.
package project

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// CaseType is the naming/metadata convention a project follows
type CaseType string

// CaseType constants
const (
	CaseOldFormat CaseType = "old_format"
	CaseNewFormat CaseType = "new_format"
)

// Info is the normalized projection of a project document
type Info struct {
	ProjectName       string   `json:"project_name"`
	ProjectID         string   `json:"project_id"`
	CustomerReference string   `json:"customer_reference"`
	LibraryPrepMethod string   `json:"library_prep_method"`
	LibraryPrepOption string   `json:"library_prep_option"`
	ReferenceGenome   string   `json:"reference_genome"`
	Organism          string   `json:"organism"`
	Contact           string   `json:"contact"`
	CaseType          CaseType `json:"case_type"`

	// Single-cell option flags, only populated for new_format projects
	Hashing string `json:"hashing,omitempty"`
	Cite    string `json:"cite,omitempty"`
	VDJ     string `json:"vdj,omitempty"`
	Feature string `json:"feature,omitempty"`
}

// IsZero reports whether extraction produced no metadata
func (i Info) IsZero() bool {
	return i == Info{}
}

// LibraryPrep returns the field the default feature of an original sample is
// derived from: the prep option for old_format projects and the construction
// method otherwise
func (i Info) LibraryPrep() string {
	if i.CaseType == CaseOldFormat {
		return i.LibraryPrepOption
	}
	return i.LibraryPrepMethod
}

// SafeName makes a project name usable as a directory name
func SafeName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}

// ExtractInfo builds Info from a document. Any failure is logged and yields
// the zero Info.
func ExtractInfo(doc *pipeline.ProjectDocument, logger *slog.Logger) (info Info) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("failed to extract project information", "error", fmt.Sprint(r))
			info = Info{}
		}
	}()

	details := doc.Details
	info = Info{
		ProjectName:       SafeName(doc.ProjectName),
		ProjectID:         doc.ProjectID,
		CustomerReference: doc.CustomerReference,
		LibraryPrepMethod: details.LibraryConstructionMethod,
		LibraryPrepOption: details.LibraryPrepOption,
		ReferenceGenome:   doc.ReferenceGenome,
		Organism:          details.Organism,
		Contact:           doc.Contact,
	}
	if info.ProjectID == "" {
		info.ProjectID = "Unknown_Project"
	}

	if info.LibraryPrepOption != "" {
		info.CaseType = CaseOldFormat
		return info
	}

	info.CaseType = CaseNewFormat
	info.Hashing = orNone(details.SingleCellHashing)
	info.Cite = orNone(details.SingleCellCite)
	info.VDJ = orNone(details.SingleCellVDJ)
	info.Feature = orNone(details.SingleCellFeature)
	return info
}

func orNone(value string) string {
	if value == "" {
		return "None"
	}
	return value
}
