package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
)

type Author struct {
	ID   int    `po:"id,primaryKey,serial"`
	Name string `po:"name,varchar(100)"`
}

type Book struct {
	ID     int     `po:"id,primaryKey,serial"`
	Title  string  `po:"title,varchar(200)"`
	Author *Author `po:"author,foreignKey,relatedName(books)"`
}

type Tag struct {
	ID    int    `po:"id,primaryKey,serial"`
	Label string `po:"label,varchar(50)"`
}

type Post struct {
	ID     int     `po:"id,primaryKey,serial"`
	Body   string  `po:"body,text"`
	Editor *Author `po:"editor,foreignKey,relatedName(+)"`
	Tags   []Tag   `po:"tags,manyToMany"`
}

type Review struct {
	ID       int     `po:"id,primaryKey,serial"`
	Author   *Author `po:"author,foreignKey"`
	CoAuthor *Author `po:"co_author,foreignKey"`
}

type Place struct {
	ID   int    `po:"id,primaryKey,serial"`
	Name string `po:"name,varchar(50)"`
}

type Restaurant struct {
	Place `po:"place"`
	Seats int `po:"seats"`
}

type OrderedPlace struct {
	Place `po:"place"`
}

func (OrderedPlace) ModelMeta() model.Meta { return model.Meta{Proxy: true} }

type Status int16

const (
	StatusDraft Status = iota
	StatusPublished
)

type Article struct {
	ID     int    `po:"id,primaryKey,serial"`
	Status Status `po:"status"`
	Ref    string `po:"ref,uuid"`
}

func init() {
	model.RegisterEnum(model.EnumOf(StatusDraft, StatusPublished))
}

func prepare(t *testing.T, models ...any) *Bridge {
	t.Helper()
	set := model.NewSet()
	require.NoError(t, set.Register(models...))
	b := New(set)
	require.NoError(t, b.Prepare(context.Background()))
	return b
}

func TestPrepare_AuthorBook(t *testing.T) {
	b := prepare(t, Author{}, Book{})
	md := b.MetaData()

	author, ok := md.Table("author")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, author.ColumnNames())

	book, ok := md.Table("book")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "title", "author_id"}, book.ColumnNames())

	fk := book.C("author_id").ForeignKey
	require.NotNil(t, fk)
	assert.Equal(t, "author.id", fk.Target)
	assert.True(t, book.C("author_id").Nullable)
	assert.True(t, book.C("id").PrimaryKey)
	assert.True(t, book.C("id").AutoIncrement)

	authorCls, ok := b.Class("Author")
	require.True(t, ok)
	bookCls, ok := b.ClassOf(&Book{})
	require.True(t, ok)
	assert.Same(t, authorCls, b.set.Get("Author").SA)

	t.Run("forward relationship", func(t *testing.T) {
		rel, ok := bookCls.Relationship("author")
		require.True(t, ok)
		assert.Same(t, authorCls, rel.Target)
		assert.Equal(t, mapping.ManyToOne, rel.Direction)
		assert.Equal(t, "book.author_id = author.id", rel.PrimaryJoin.String())
		assert.Equal(t, []*mapping.Column{book.C("author_id")}, rel.ForeignKeys)
		require.NotNil(t, rel.Backref)
		assert.Equal(t, "books", rel.Backref.Name)
	})

	t.Run("backref", func(t *testing.T) {
		rev, ok := authorCls.Relationship("books")
		require.True(t, ok)
		assert.Same(t, bookCls, rev.Target)
		assert.Equal(t, mapping.OneToMany, rev.Direction)
		assert.True(t, rev.UseList)
		assert.Equal(t, "author", rev.BackPopulates)
		assert.Equal(t, "book.author_id = author.id", rev.PrimaryJoin.String())
	})
}

func TestPrepare_ColumnsAreConcreteFields(t *testing.T) {
	b := prepare(t, Author{}, Tag{}, Post{})

	post, ok := b.MetaData().Table("post")
	require.True(t, ok)
	// Many-to-many fields get no column.
	assert.Equal(t, []string{"id", "body", "editor_id"}, post.ColumnNames())
}

func TestPrepare_ManyToMany(t *testing.T) {
	b := prepare(t, Author{}, Tag{}, Post{})
	md := b.MetaData()

	junction, ok := md.Table("post_tags")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "post_id", "tag_id"}, junction.ColumnNames())
	assert.Equal(t, "post.id", junction.C("post_id").ForeignKey.Target)
	assert.Equal(t, "tag.id", junction.C("tag_id").ForeignKey.Target)

	_, ok = b.Class("Post_tags")
	assert.False(t, ok, "implicit junction models get no class")

	postCls, _ := b.Class("Post")
	tagCls, _ := b.Class("Tag")

	rel, ok := postCls.Relationship("tags")
	require.True(t, ok)
	assert.Equal(t, mapping.ManyToManyDirection, rel.Direction)
	assert.Same(t, junction, rel.Secondary)
	assert.NotEqual(t, postCls.Table, rel.Secondary)
	assert.NotEqual(t, tagCls.Table, rel.Secondary)
	assert.Equal(t, "post_tags.post_id = post.id", rel.PrimaryJoin.String())
	assert.Equal(t, "post_tags.tag_id = tag.id", rel.SecondaryJoin.String())
	assert.True(t, rel.UseList)

	rev, ok := tagCls.Relationship("post_set")
	require.True(t, ok)
	assert.Same(t, junction, rev.Secondary)
	assert.Equal(t, "post_tags.tag_id = tag.id", rev.PrimaryJoin.String())
	assert.Equal(t, "post_tags.post_id = post.id", rev.SecondaryJoin.String())
}

func TestPrepare_SuppressedBackref(t *testing.T) {
	b := prepare(t, Author{}, Tag{}, Post{})

	postCls, _ := b.Class("Post")
	rel, ok := postCls.Relationship("editor")
	require.True(t, ok)
	assert.Nil(t, rel.Backref)

	authorCls, _ := b.Class("Author")
	for _, r := range authorCls.Relationships() {
		assert.NotEqual(t, "Post", r.Target.Name, "unexpected backref %s", r.Key)
	}
}

func TestPrepare_BackrefConflict(t *testing.T) {
	set := model.NewSet()
	require.NoError(t, set.Register(Author{}, Review{}))

	b := New(set)
	err := b.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, mapping.ErrPropertyConflict), "got %v", err)

	t.Run("nothing stays bound", func(t *testing.T) {
		assert.Nil(t, set.Get("Author").SA)
		assert.Nil(t, set.Get("Review").SA)
		assert.Empty(t, b.MetaData().Names())
		assert.Zero(t, b.Cache().Tables())
		assert.Empty(t, b.Mapper().Classes())
		_, ok := b.Class("Author")
		assert.False(t, ok)
	})

	t.Run("retry reports the same conflict", func(t *testing.T) {
		err := b.Prepare(context.Background())
		assert.ErrorIs(t, err, mapping.ErrPropertyConflict)
		assert.NotErrorIs(t, err, mapping.ErrAlreadyMapped)
		assert.Nil(t, set.Get("Author").SA)
		assert.Empty(t, b.MetaData().Names())
	})
}

func TestPrepare_ForwardReference(t *testing.T) {
	// Book refers to Author before Author is registered.
	b := prepare(t, Book{}, Author{})
	md := b.MetaData()
	assert.Equal(t, []string{"author", "book"}, md.Names())

	author, ok := md.Table("author")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, author.ColumnNames())

	book, ok := md.Table("book")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "title", "author_id"}, book.ColumnNames())
	require.NotNil(t, book.C("author_id").ForeignKey)
	assert.Equal(t, "author.id", book.C("author_id").ForeignKey.Target)
	target, err := book.C("author_id").ForeignKey.Resolve(md)
	require.NoError(t, err)
	assert.Same(t, author.C("id"), target)

	authorCls, _ := b.Class("Author")
	bookCls, _ := b.Class("Book")

	rel, ok := bookCls.Relationship("author")
	require.True(t, ok)
	assert.Same(t, authorCls, rel.Target)
	assert.Equal(t, "book.author_id = author.id", rel.PrimaryJoin.String())

	rev, ok := authorCls.Relationship("books")
	require.True(t, ok)
	assert.Same(t, bookCls, rev.Target)
	assert.True(t, rev.UseList)
}

func TestPrepare_Inheritance(t *testing.T) {
	b := prepare(t, Place{}, Restaurant{}, OrderedPlace{})
	md := b.MetaData()

	t.Run("child table holds the parent link and own fields", func(t *testing.T) {
		restaurant, ok := md.Table("restaurant")
		require.True(t, ok)
		assert.Equal(t, []string{"place_ptr_id", "seats"}, restaurant.ColumnNames())
		link := restaurant.C("place_ptr_id")
		assert.True(t, link.PrimaryKey)
		assert.Equal(t, "place.id", link.ForeignKey.Target)
	})

	t.Run("parent link backref is single", func(t *testing.T) {
		placeCls, _ := b.Class("Place")
		rev, ok := placeCls.Relationship("restaurant")
		require.True(t, ok)
		assert.False(t, rev.UseList)
		assert.Equal(t, "restaurant.place_ptr_id = place.id", rev.PrimaryJoin.String())
	})

	t.Run("proxy shares the parent table", func(t *testing.T) {
		assert.Equal(t, []string{"place", "restaurant"}, md.Names())

		proxyCls, ok := b.Class("OrderedPlace")
		require.True(t, ok)
		placeCls, _ := b.Class("Place")
		assert.Same(t, placeCls.Table, proxyCls.Table)

		byTable, ok := b.Cache().ByTable("place")
		require.True(t, ok)
		assert.Same(t, placeCls, byTable)
	})
}

func TestPrepare_Enum(t *testing.T) {
	b := prepare(t, Article{})

	article, ok := b.MetaData().Table("article")
	require.True(t, ok)
	// uuid has no default type entry.
	assert.Equal(t, []string{"id", "status"}, article.ColumnNames())

	adapter, ok := article.C("status").Type.(*EnumAdapter)
	require.True(t, ok, "status column is %T", article.C("status").Type)
	assert.Equal(t, "SMALLINT", adapter.SQL())

	t.Run("custom type fills the gap", func(t *testing.T) {
		set := model.NewSet()
		require.NoError(t, set.Register(Article{}))
		b := New(set, WithTypes(TypeMap{"UUIDField": Fixed(mapping.Char{Length: 36})}))
		require.NoError(t, b.Prepare(context.Background()))

		article, _ := b.MetaData().Table("article")
		assert.Equal(t, []string{"id", "status", "ref"}, article.ColumnNames())
		assert.Equal(t, "CHAR(36)", article.C("ref").Type.SQL())
	})
}

func TestPrepare_Idempotent(t *testing.T) {
	set := model.NewSet()
	require.NoError(t, set.Register(Author{}, Book{}))
	b := New(set)
	ctx := context.Background()

	require.NoError(t, b.Prepare(ctx))
	first, _ := b.Class("Book")
	require.NoError(t, b.Prepare(ctx))
	second, _ := b.Class("Book")
	assert.Same(t, first, second)

	b.Reset()
	assert.Empty(t, b.MetaData().Names())
	assert.Nil(t, set.Get("Book").SA)

	require.NoError(t, b.Prepare(ctx))
	third, ok := b.Class("Book")
	require.True(t, ok)
	assert.NotSame(t, first, third)
}

func TestPrepare_SharedMetaData(t *testing.T) {
	md := mapping.NewMetaData()
	existing, err := mapping.NewTable(md, "author",
		&mapping.Column{Name: "id", Type: mapping.Integer{}, PrimaryKey: true},
		&mapping.Column{Name: "name", Type: mapping.Text{}},
		&mapping.Column{Name: "bio", Type: mapping.Text{}},
	)
	require.NoError(t, err)

	set := model.NewSet()
	require.NoError(t, set.Register(Author{}, Book{}))
	b := New(set, WithMetaData(md))
	require.NoError(t, b.Prepare(context.Background()))

	authorCls, _ := b.Class("Author")
	assert.Same(t, existing, authorCls.Table)

	t.Run("reset keeps tables the bridge did not create", func(t *testing.T) {
		legacy, err := mapping.NewTable(md, "legacy",
			&mapping.Column{Name: "id", Type: mapping.Integer{}, PrimaryKey: true})
		require.NoError(t, err)

		b.Reset()
		assert.Equal(t, []string{"author", "legacy"}, md.Names())
		got, _ := md.Table("legacy")
		assert.Same(t, legacy, got)
		got, _ = md.Table("author")
		assert.Same(t, existing, got)

		require.NoError(t, b.Prepare(context.Background()))
		assert.Equal(t, []string{"author", "book", "legacy"}, md.Names())
	})
}

func TestReset_SharedCache(t *testing.T) {
	ctx := context.Background()
	shared := NewCache()
	legacy := &mapping.Class{Name: "Legacy"}
	shared.PutTable("legacy", legacy)
	// An application class registered under a table the bridge also binds.
	external := &mapping.Class{Name: "ExternalAuthor"}
	shared.PutTable("author", external)

	set := model.NewSet()
	require.NoError(t, set.Register(Author{}, Book{}))
	b := New(set, WithCache(shared))
	require.NoError(t, b.Prepare(ctx))

	authorCls, _ := b.Class("Author")
	got, _ := shared.ByTable("author")
	assert.Same(t, authorCls, got)

	b.Reset()
	assert.Equal(t, 2, shared.Tables())
	got, ok := shared.ByTable("legacy")
	require.True(t, ok)
	assert.Same(t, legacy, got)
	got, _ = shared.ByTable("author")
	assert.Same(t, external, got)
	_, ok = shared.ByTable("book")
	assert.False(t, ok)
	_, ok = shared.ByModel(set.Get("Book"))
	assert.False(t, ok)

	require.NoError(t, b.Prepare(ctx))
	assert.Equal(t, 3, shared.Tables())
	got, _ = shared.ByTable("legacy")
	assert.Same(t, legacy, got)
}

func TestGenerateTables_Idempotent(t *testing.T) {
	set := model.NewSet()
	require.NoError(t, set.Register(Author{}, Book{}))
	require.NoError(t, set.Resolve())

	md := mapping.NewMetaData()
	require.NoError(t, GenerateTables(md, set.AllModels(), DefaultTypes()))
	first, _ := md.Table("book")

	require.NoError(t, GenerateTables(md, set.AllModels(), DefaultTypes()))
	second, _ := md.Table("book")
	assert.Same(t, first, second)
	assert.Equal(t, []string{"author", "book"}, md.Names())
}

func TestExtractRelationships_RequiresClasses(t *testing.T) {
	set := model.NewSet()
	require.NoError(t, set.Register(Author{}, Book{}))
	require.NoError(t, set.Resolve())

	md := mapping.NewMetaData()
	require.NoError(t, GenerateTables(md, set.AllModels(), DefaultTypes()))

	_, err := ExtractRelationships(set.Get("Book"), md, NewCache())
	assert.ErrorIs(t, err, mapping.ErrNotMapped)

	cache := NewCache()
	author, _ := md.Table("author")
	cache.Put(set.Get("Author"), &mapping.Class{Name: "Author", Table: author})
	props, err := ExtractRelationships(set.Get("Book"), md, cache)
	require.NoError(t, err)
	assert.Len(t, props, 1)
	assert.Contains(t, props, "author")
}
