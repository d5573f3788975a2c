package registry

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed report.cue
var reportSchema string

// SchemaError reports a body that does not satisfy #Report.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return "report schema: " + e.Detail
}

// schema holds the compiled #Report definition. A cue.Context is not safe
// for concurrent use, so every use holds mu.
type schema struct {
	mu     sync.Mutex
	once   sync.Once
	ctx    *cue.Context
	report cue.Value
	err    error
}

var reports schema

func (s *schema) load() {
	s.ctx = cuecontext.New()
	v := s.ctx.CompileString(reportSchema, cue.Filename("report.cue"))
	if err := v.Err(); err != nil {
		s.err = fmt.Errorf("compile report schema: %w", err)
		return
	}
	s.report = v.LookupPath(cue.ParsePath("#Report"))
	if !s.report.Exists() {
		s.err = fmt.Errorf("compile report schema: #Report not defined")
	}
}

// ValidateReport checks a JSON report body against the #Report schema.
// Returns *SchemaError when the body is malformed or violates the schema.
func ValidateReport(body []byte) error {
	reports.mu.Lock()
	defer reports.mu.Unlock()

	reports.once.Do(reports.load)
	if reports.err != nil {
		return reports.err
	}

	v := reports.ctx.CompileBytes(body, cue.Filename("report.json"))
	if err := v.Err(); err != nil {
		return &SchemaError{Detail: cueerrors.Details(err, nil)}
	}
	if err := reports.report.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Detail: cueerrors.Details(err, nil)}
	}
	return nil
}
