// Package filter decides which (unit, update kind) pairs are retained by the
// logger.
//
// Each axis of the allow-list is optional. A nil list means the axis is not
// restricted; a non-nil empty list matches nothing, so a configuration such as
// `unit_types: []` silently rejects every update.
package filter

import (
	"fmt"

	"github.com/daryltucker/iulog/internal/model"
)

// Config is the user-facing filter configuration.
type Config struct {
	UnitTypes   []model.UnitType   `yaml:"unit_types"`
	UpdateKinds []model.UpdateKind `yaml:"update_kinds"`
	// Where is an optional CEL expression evaluated after the allow-lists.
	Where string `yaml:"where"`
}

// Filter is an immutable predicate built from a Config.
type Filter struct {
	unitTypes   map[model.UnitType]struct{}
	updateKinds map[model.UpdateKind]struct{}
	where       celFilter
}

// New compiles cfg. The only possible error is an invalid Where expression.
func New(cfg Config) (*Filter, error) {
	f := &Filter{}
	if cfg.UnitTypes != nil {
		f.unitTypes = make(map[model.UnitType]struct{}, len(cfg.UnitTypes))
		for _, t := range cfg.UnitTypes {
			f.unitTypes[t] = struct{}{}
		}
	}
	if cfg.UpdateKinds != nil {
		f.updateKinds = make(map[model.UpdateKind]struct{}, len(cfg.UpdateKinds))
		for _, k := range cfg.UpdateKinds {
			f.updateKinds[k] = struct{}{}
		}
	}
	where, err := newCELFilter(cfg.Where)
	if err != nil {
		return nil, fmt.Errorf("invalid where expression: %w", err)
	}
	f.where = where
	return f, nil
}

// Accepts reports whether the update should be logged.
func (f *Filter) Accepts(unit *model.Unit, kind model.UpdateKind) bool {
	if f == nil {
		return true
	}
	if f.unitTypes != nil {
		if unit == nil {
			return false
		}
		if _, ok := f.unitTypes[unit.TypeOrBase()]; !ok {
			return false
		}
	}
	if f.updateKinds != nil {
		if _, ok := f.updateKinds[kind]; !ok {
			return false
		}
	}
	return f.where.Eval(unit, kind)
}
