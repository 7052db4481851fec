package ingestsvc

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/verbatimhq/verbatim/internal/transcript"
)

// celFilter wraps a compiled CEL program evaluated per fragment. It backs
// both historical Search and live Tail filtering. When disabled, Eval
// always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("speaker", cel.StringType),
		cel.Variable("language", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("start_ms", cel.IntType),
		cel.Variable("end_ms", cel.IntType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("interim", cel.BoolType),
		cel.Variable("bucket_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the expression against one fragment. Evaluation errors
// exclude the fragment rather than failing the scan.
func (f celFilter) Eval(frag transcript.StoredFragment) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"speaker":    frag.SpeakerID,
		"language":   frag.Language,
		"text":       frag.Text,
		"confidence": frag.Confidence,
		"start_ms":   frag.StartMs,
		"end_ms":     frag.EndMs,
		"sequence":   int64(frag.Sequence),
		"interim":    frag.Interim,
		"bucket_ms":  frag.BucketMs,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
