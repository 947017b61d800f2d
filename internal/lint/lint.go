// Package lint checks WireMock mapping files: schema conformance and
// bodyFileName references that point at missing body files.
package lint

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"wmref/internal/graph"
)

//go:embed mapping.schema.json
var mappingSchema string

const schemaURL = "https://wmref.local/mapping.schema.json"

type IssueKind string

const (
	IssueSyntax   IssueKind = "syntax"
	IssueSchema   IssueKind = "schema"
	IssueDangling IssueKind = "dangling"
	IssueOrphan   IssueKind = "orphan"
)

// Issue is one finding, positioned when the position is known.
type Issue struct {
	Path     string    `json:"path"`
	Line     int       `json:"line,omitempty"`
	Column   int       `json:"column,omitempty"`
	Kind     IssueKind `json:"kind"`
	Location string    `json:"location,omitempty"` // JSON pointer for schema issues
	Message  string    `json:"message"`
}

func (i Issue) String() string {
	pos := i.Path
	if i.Line > 0 {
		pos = fmt.Sprintf("%s:%d:%d", i.Path, i.Line, i.Column)
	}
	if i.Location != "" {
		return fmt.Sprintf("%s: %s: %s at %s", pos, i.Kind, i.Message, i.Location)
	}
	return fmt.Sprintf("%s: %s: %s", pos, i.Kind, i.Message)
}

// Linter validates mapping files against the embedded stub mapping schema.
type Linter struct {
	schema *jsonschema.Schema
	logger *zap.Logger
}

func NewLinter(logger *zap.Logger) (*Linter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(mappingSchema)); err != nil {
		return nil, fmt.Errorf("failed to load mapping schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mapping schema: %w", err)
	}
	return &Linter{schema: compiled, logger: logger}, nil
}

// LintFile reads and validates one mapping file.
func (l *Linter) LintFile(path string) ([]Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.LintBytes(path, data), nil
}

// LintBytes validates a mapping document.
func (l *Linter) LintBytes(path string, data []byte) []Issue {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return []Issue{{Path: path, Kind: IssueSyntax, Message: err.Error()}}
	}

	err := l.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Issue{{Path: path, Kind: IssueSchema, Message: err.Error()}}
	}

	var issues []Issue
	seen := make(map[string]bool)
	for _, e := range ve.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		key := e.InstanceLocation + "|" + e.Error
		if seen[key] {
			continue
		}
		seen[key] = true
		issues = append(issues, Issue{
			Path:     path,
			Kind:     IssueSchema,
			Location: e.InstanceLocation,
			Message:  e.Error,
		})
	}
	if len(issues) == 0 {
		issues = append(issues, Issue{Path: path, Kind: IssueSchema, Message: ve.Message})
	}
	return issues
}

// Report is the combined result of a project check.
type Report struct {
	Issues   []Issue
	Mappings int
	Bodies   int
}

// Check validates every mapping file in g and reports dangling references.
// Orphaned body files are included when withOrphans is set.
func (l *Linter) Check(g *graph.Graph, withOrphans bool) (*Report, error) {
	report := &Report{
		Mappings: g.Count(graph.KindMapping),
		Bodies:   g.Count(graph.KindBody),
	}

	var mappings []string
	for path, node := range g.Nodes {
		if node.Kind == graph.KindMapping {
			mappings = append(mappings, path)
		}
	}
	sort.Strings(mappings)

	for _, path := range mappings {
		issues, err := l.LintFile(path)
		if err != nil {
			l.logger.Warn("Skipping unreadable mapping file", zap.String("path", path), zap.Error(err))
			continue
		}
		report.Issues = append(report.Issues, issues...)
	}

	for _, u := range g.Dangling() {
		msg := fmt.Sprintf("body file %q does not exist", u.Ref.Value)
		if u.Reason == graph.ReasonEmptyName {
			msg = "bodyFileName is empty"
		}
		report.Issues = append(report.Issues, Issue{
			Path:    u.From,
			Line:    u.Ref.Line,
			Column:  u.Ref.Column,
			Kind:    IssueDangling,
			Message: msg,
		})
	}

	if withOrphans {
		for _, n := range g.Orphans() {
			report.Issues = append(report.Issues, Issue{
				Path:    n.Path,
				Kind:    IssueOrphan,
				Message: "no mapping file references this body file",
			})
		}
	}
	return report, nil
}
