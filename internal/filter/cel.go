package filter

import (
	"encoding/json"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/daryltucker/iulog/internal/model"
)

// celFilter wraps a compiled CEL program. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
	// usesPayload is set when the checked expression reads payload; the
	// payload is only converted for CEL in that case.
	usesPayload bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("unit_type", cel.StringType),
		cel.Variable("update_type", cel.StringType),
		cel.Variable("iuid", cel.StringType),
		cel.Variable("creator", cel.StringType),
		// Fractional unix seconds, 0 when the unit carries no timestamp
		cel.Variable("timestamp", cel.DoubleType),
		// Payload decoded into plain JSON values (map/list/scalars)
		cel.Variable("payload", cel.DynType),
		cel.Variable("has_previous", cel.BoolType),
		cel.Variable("grounded", cel.BoolType),
	)
	if err != nil {
		return celFilter{}, err
	}
	checked, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true, usesPayload: references(checked, "payload")}, nil
}

// references reports whether the checked expression reads the named variable.
func references(checked *cel.Ast, name string) bool {
	for _, ref := range checked.NativeRep().ReferenceMap() {
		if ref.Name == name {
			return true
		}
	}
	return false
}

// Eval evaluates the expression against an update. Evaluation errors and
// non-bool results reject.
func (f celFilter) Eval(unit *model.Unit, kind model.UpdateKind) bool {
	if !f.enabled {
		return true
	}
	vars := map[string]any{
		"unit_type":    "",
		"update_type":  kind.String(),
		"iuid":         "",
		"creator":      "",
		"timestamp":    0.0,
		"payload":      nil,
		"has_previous": false,
		"grounded":     false,
	}
	if unit != nil {
		vars["unit_type"] = string(unit.TypeOrBase())
		vars["iuid"] = unit.IUID
		vars["creator"] = unit.Creator
		if !unit.CreatedAt.IsZero() {
			vars["timestamp"] = float64(unit.CreatedAt.Unix()) + float64(unit.CreatedAt.Nanosecond())/1e9
		}
		if f.usesPayload {
			vars["payload"] = plainJSON(unit.Payload)
		}
		vars["has_previous"] = unit.Previous != nil
		vars["grounded"] = unit.GroundedIn != nil
	}
	out, _, err := f.prog.Eval(vars)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// plainJSON round-trips the rendered payload so CEL only sees types its
// default adapter understands.
func plainJSON(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(model.RenderValue(v))
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
