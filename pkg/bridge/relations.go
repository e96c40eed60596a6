package bridge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
)

// ExtractRelationships builds the relationship properties of m, keyed by
// field name. Tables must already be synthesized and every target model
// must have a class in classes.
func ExtractRelationships(m *model.Model, md *mapping.MetaData, classes *Cache) (map[string]*mapping.Relationship, error) {
	return extractRelationships(m, md, classes, discard)
}

func extractRelationships(m *model.Model, md *mapping.MetaData, classes *Cache, log *slog.Logger) (map[string]*mapping.Relationship, error) {
	table, ok := md.Table(m.Table)
	if !ok {
		return nil, fmt.Errorf("model %s: %w: %s", m.Name, mapping.ErrUnknownTable, m.Table)
	}

	props := make(map[string]*mapping.Relationship)
	for _, f := range m.RelationFields() {
		if !f.IsManyToMany() && !table.Has(f.Column) {
			log.Debug("skipping relation without a column",
				slog.String("model", m.Name),
				slog.String("field", f.Name),
				slog.String("column", f.Column))
			continue
		}

		target := f.Relation.Target
		if target == nil {
			return nil, fmt.Errorf("model %s: field %s: unresolved target %s", m.Name, f.Name, f.Relation.To)
		}
		targetPK, err := pkColumn(md, target)
		if err != nil {
			return nil, fmt.Errorf("model %s: field %s: %w", m.Name, f.Name, err)
		}
		targetClass, ok := classes.ByModel(target)
		if !ok {
			return nil, fmt.Errorf("model %s: field %s -> %s: %w", m.Name, f.Name, target.Name, mapping.ErrNotMapped)
		}

		rel := &mapping.Relationship{Target: targetClass}
		if !m.Inherited(f) {
			rel.Backref = backrefFor(m, f)
		}

		if f.IsManyToMany() {
			if err := joinThrough(rel, m, f, md, targetPK); err != nil {
				return nil, fmt.Errorf("model %s: field %s: %w", m.Name, f.Name, err)
			}
		} else {
			local := table.C(f.Column)
			rel.Direction = mapping.ManyToOne
			rel.PrimaryJoin = mapping.Equal(local, targetPK)
			rel.ForeignKeys = []*mapping.Column{local}
			rel.RemoteSide = targetPK
		}
		props[f.Name] = rel
	}
	return props, nil
}

// backrefFor names the reverse accessor on the target. An explicit related
// name ending in the suppress marker disables it; otherwise the explicit
// name is used, or the owning model's name with a _set suffix for
// collections.
func backrefFor(m *model.Model, f *model.Field) *mapping.Backref {
	rel := f.Relation
	if rel.BackrefDisabled() {
		return nil
	}
	oneToOne := rel.Kind == model.OneToOne
	name := strings.ToLower(strings.TrimSuffix(rel.RelatedName, model.SuppressBackref))
	if name == "" {
		name = m.LowerName()
		if !oneToOne {
			name += "_set"
		}
	}
	return &mapping.Backref{Name: name, UseList: !oneToOne}
}

func joinThrough(rel *mapping.Relationship, m *model.Model, f *model.Field, md *mapping.MetaData, targetPK *mapping.Column) error {
	through := f.Relation.ThroughModel
	if through == nil {
		return fmt.Errorf("unresolved junction model")
	}
	junction, ok := md.Table(through.Table)
	if !ok {
		return fmt.Errorf("junction %s: %w: %s", through.Name, mapping.ErrUnknownTable, through.Table)
	}
	ownPK, err := pkColumn(md, m)
	if err != nil {
		return err
	}
	toOwner := junction.C(f.Relation.ThroughColumn)
	toTarget := junction.C(f.Relation.ThroughTargetColumn)
	if toOwner == nil || toTarget == nil {
		return fmt.Errorf("junction %s: %w: %s, %s", junction.Name, mapping.ErrUnknownColumn,
			f.Relation.ThroughColumn, f.Relation.ThroughTargetColumn)
	}
	rel.Direction = mapping.ManyToManyDirection
	rel.UseList = true
	rel.Secondary = junction
	rel.PrimaryJoin = mapping.Equal(toOwner, ownPK)
	rel.SecondaryJoin = mapping.Equal(toTarget, targetPK)
	rel.ForeignKeys = []*mapping.Column{toOwner, toTarget}
	return nil
}

func pkColumn(md *mapping.MetaData, m *model.Model) (*mapping.Column, error) {
	t, ok := md.Table(m.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", mapping.ErrUnknownTable, m.Table)
	}
	pk := m.PK()
	if pk == nil {
		return nil, fmt.Errorf("model %s has no primary key", m.Name)
	}
	c := t.C(pk.Column)
	if c == nil {
		return nil, fmt.Errorf("%w: %s.%s", mapping.ErrUnknownColumn, t.Name, pk.Column)
	}
	return c, nil
}
