package mapping

// Direction is the cardinality of a relationship seen from its parent class.
type Direction int

const (
	ManyToOne Direction = iota + 1
	OneToMany
	ManyToManyDirection
)

func (d Direction) String() string {
	switch d {
	case ManyToOne:
		return "many-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToManyDirection:
		return "many-to-many"
	default:
		return "unknown"
	}
}

// Backref asks the mapper to create the reverse relationship on the target
// class.
type Backref struct {
	Name string
	// UseList is false for single-object backrefs (one-to-one).
	UseList bool
}

// NewBackref creates a collection backref.
func NewBackref(name string) *Backref {
	return &Backref{Name: name, UseList: true}
}

// Relationship describes how a class reaches a related class.
type Relationship struct {
	// Key and Parent are set when the relationship is mapped.
	Key    string
	Parent *Class
	Target *Class

	// PrimaryJoin joins the parent table (or, with a Secondary table, the
	// junction table) to the parent.
	PrimaryJoin *BinaryExpression
	// Secondary is the junction table of a many-to-many relationship and
	// SecondaryJoin joins it to the target table.
	Secondary     *Table
	SecondaryJoin *BinaryExpression

	ForeignKeys []*Column
	RemoteSide  *Column
	Direction   Direction
	UseList     bool
	Backref     *Backref

	// BackPopulates names the relationship this one was created from, for
	// backrefs.
	BackPopulates string
}

// reverse builds the backref relationship.
func (r *Relationship) reverse() *Relationship {
	rev := &Relationship{
		Key:           r.Backref.Name,
		Parent:        r.Target,
		Target:        r.Parent,
		ForeignKeys:   r.ForeignKeys,
		UseList:       r.Backref.UseList,
		BackPopulates: r.Key,
	}
	if r.Secondary != nil {
		rev.Direction = ManyToManyDirection
		rev.Secondary = r.Secondary
		rev.PrimaryJoin = r.SecondaryJoin
		rev.SecondaryJoin = r.PrimaryJoin
		return rev
	}
	rev.Direction = OneToMany
	rev.PrimaryJoin = r.PrimaryJoin
	if len(r.ForeignKeys) > 0 {
		rev.RemoteSide = r.ForeignKeys[0]
	}
	return rev
}
