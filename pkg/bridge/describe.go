package bridge

import (
	"sort"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
)

// Description is a serializable summary of a prepared bridge.
type Description struct {
	Tables  []TableInfo `json:"tables"`
	Classes []ClassInfo `json:"classes"`
}

// TableInfo describes a synthesized table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Nullable   bool   `json:"nullable,omitempty"`
	References string `json:"references,omitempty"`
}

// ClassInfo describes a mapped class.
type ClassInfo struct {
	Name          string             `json:"name"`
	Table         string             `json:"table"`
	Alias         string             `json:"alias"`
	Relationships []RelationshipInfo `json:"relationships,omitempty"`
}

// RelationshipInfo describes a relationship property, forward or backref.
type RelationshipInfo struct {
	Key           string `json:"key"`
	Target        string `json:"target"`
	Direction     string `json:"direction"`
	Join          string `json:"join"`
	Secondary     string `json:"secondary,omitempty"`
	SecondaryJoin string `json:"secondary_join,omitempty"`
	Backref       string `json:"backref,omitempty"`
	BackPopulates string `json:"back_populates,omitempty"`
	UseList       bool   `json:"uselist"`
}

// Describe summarizes the tables and classes of the bridge.
func (b *Bridge) Describe() Description {
	var d Description
	for _, t := range b.md.Tables() {
		info := TableInfo{Name: t.Name}
		for _, c := range t.Columns {
			ci := ColumnInfo{
				Name:       c.Name,
				Type:       c.Type.SQL(),
				PrimaryKey: c.PrimaryKey,
				Nullable:   c.Nullable,
			}
			if c.ForeignKey != nil {
				ci.References = c.ForeignKey.Target
			}
			info.Columns = append(info.Columns, ci)
		}
		d.Tables = append(d.Tables, info)
	}

	for _, cls := range b.mapper.Classes() {
		info := ClassInfo{Name: cls.Name, Alias: cls.Alias}
		if cls.Table != nil {
			info.Table = cls.Table.Name
		}
		for _, rel := range cls.Relationships() {
			info.Relationships = append(info.Relationships, describeRelationship(rel))
		}
		d.Classes = append(d.Classes, info)
	}
	sort.Slice(d.Classes, func(i, j int) bool { return d.Classes[i].Name < d.Classes[j].Name })
	return d
}

func describeRelationship(rel *mapping.Relationship) RelationshipInfo {
	info := RelationshipInfo{
		Key:           rel.Key,
		Direction:     rel.Direction.String(),
		BackPopulates: rel.BackPopulates,
		UseList:       rel.UseList,
	}
	if rel.Target != nil {
		info.Target = rel.Target.Name
	}
	if rel.PrimaryJoin != nil {
		info.Join = rel.PrimaryJoin.String()
	}
	if rel.Secondary != nil {
		info.Secondary = rel.Secondary.Name
	}
	if rel.SecondaryJoin != nil {
		info.SecondaryJoin = rel.SecondaryJoin.String()
	}
	if rel.Backref != nil {
		info.Backref = rel.Backref.Name
	}
	return info
}
