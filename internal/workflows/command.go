package workflows

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// referenceArgument names the argument and reference key a pipeline takes
// its reference genome from
var referenceArgument = map[string]struct{ arg, key string }{
	"count": {"--transcriptome", "gex"},
	"vdj":   {"--reference", "vdj"},
	"atac":  {"--reference", "atac"},
}

// AssembleCommand builds the pipeline command line from the rule. Only the
// rule's required arguments that have a value are included, followed by its
// fixed arguments verbatim.
func AssembleCommand(req SampleRequest, fastqs []FastqDirs, references map[string]string) string {
	rule := req.Rule
	parts := []string{strings.TrimSpace(rule.PipelineExec + " " + rule.Pipeline)}

	values := map[string]string{
		"--id":          req.SampleID,
		"--libraries":   librariesPath(req),
		"--feature-ref": filepath.Join(req.ProjectDir, req.SampleID+"_feature_reference.csv"),
		"--csv":         filepath.Join(req.ProjectDir, req.SampleID+"_multi.csv"),
	}
	if len(fastqs) > 0 {
		values["--fastqs"] = strings.Join(fastqs[0].All(), ",")
		values["--sample"] = fastqs[0].SampleID
	}
	if ref, ok := referenceArgument[rule.Pipeline]; ok {
		if path := references[ref.key]; path != "" {
			values[ref.arg] = path
		}
	}

	for _, arg := range rule.RequiredArguments {
		if value := values[arg]; value != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", arg, value))
		}
	}
	parts = append(parts, rule.FixedArguments...)

	return strings.Join(parts, " \\\n    ")
}

// LibrariesCSV renders the fastqs,sample,library_type table with one row per
// FASTQ directory. Members whose feature has no library type are logged and
// left out.
func LibrariesCSV(fastqs []FastqDirs, libraryTypes map[string]string, logger *slog.Logger) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"fastqs", "sample", "library_type"}); err != nil {
		return nil, err
	}
	for _, member := range fastqs {
		libraryType, ok := libraryTypes[member.Feature]
		if !ok {
			logger.Error("no library type for feature", "member", member.SampleID, "feature", member.Feature)
			continue
		}
		for _, path := range member.All() {
			if err := w.Write([]string{path, member.SampleID, libraryType}); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: libraries CSV: %v", ErrStepFailed, err)
	}
	return buf.Bytes(), nil
}
