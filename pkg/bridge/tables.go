package bridge

import (
	"fmt"
	"log/slog"

	"github.com/marshallshelly/pebble-bridge/pkg/logging"
	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
)

var discard = logging.Discard()

// GenerateTables adds one table per model to md. Models whose table is
// already registered and proxy models are skipped, so running it twice over
// the same models changes nothing. Fields inherited from a concrete parent
// live in the parent's table and are skipped. Fields whose type-name has no
// entry in types get no column.
func GenerateTables(md *mapping.MetaData, models []*model.Model, types TypeMap) error {
	_, err := generateTables(md, models, types, discard)
	return err
}

// generateTables returns the names of the tables it added, also on error.
func generateTables(md *mapping.MetaData, models []*model.Model, types TypeMap, log *slog.Logger) ([]string, error) {
	var added []string
	for _, m := range models {
		if m.Proxy || md.Has(m.Table) {
			continue
		}
		var columns []*mapping.Column
		for _, f := range m.Fields {
			if m.Inherited(f) {
				continue
			}
			spec, ok, err := types.Column(f)
			if err != nil {
				return added, fmt.Errorf("model %s: %w", m.Name, err)
			}
			if !ok {
				log.Debug("skipping field with unmapped type",
					slog.String("model", m.Name),
					slog.String("field", f.Name),
					slog.String("kind", f.Kind))
				continue
			}
			columns = append(columns, &mapping.Column{
				Name:          f.Column,
				Type:          spec.Type,
				PrimaryKey:    f.PrimaryKey,
				Nullable:      f.Null,
				Unique:        f.Unique,
				AutoIncrement: f.Kind == "AutoField" || f.Kind == "BigAutoField",
				ForeignKey:    spec.ForeignKey,
			})
		}
		if _, err := mapping.NewTable(md, m.Table, columns...); err != nil {
			return added, fmt.Errorf("model %s: %w", m.Name, err)
		}
		added = append(added, m.Table)
		log.Debug("table synthesized",
			slog.String("model", m.Name),
			slog.String("table", m.Table),
			slog.Int("columns", len(columns)))
	}
	return added, nil
}
