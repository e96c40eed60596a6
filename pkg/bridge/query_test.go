package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
	"github.com/marshallshelly/pebble-bridge/pkg/runtime"
	"github.com/marshallshelly/pebble-bridge/pkg/session"
)

func sqliteEngines(t *testing.T) *runtime.Engines {
	t.Helper()
	engines := runtime.NewEngines(map[string]runtime.Config{
		model.DefaultAlias: {Driver: runtime.DriverSQLite, URL: ":memory:"},
	}, nil)
	t.Cleanup(func() { _ = engines.Close() })
	return engines
}

func TestClassQuery_SQLite(t *testing.T) {
	set := model.NewSet()
	require.NoError(t, set.Register(Author{}, Book{}, Tag{}, Post{}, Article{}))
	b := New(set, WithSessions(session.Source{}))
	require.NoError(t, b.Prepare(context.Background()))

	engines := sqliteEngines(t)
	store := session.NewStore(engines)
	ctx := session.WithStore(context.Background(), store)
	t.Cleanup(func() { _ = store.CloseAll() })

	sess, err := store.Get(ctx, model.DefaultAlias)
	require.NoError(t, err)
	require.NoError(t, b.MetaData().CreateAll(ctx, sess.Conn()))

	author, _ := b.Class("Author")
	book, _ := b.Class("Book")
	tag, _ := b.Class("Tag")
	post, _ := b.Class("Post")
	article, _ := b.Class("Article")

	require.NoError(t, sess.Insert(ctx, author, map[string]any{"id": 1, "name": "Le Guin"}))
	require.NoError(t, sess.Insert(ctx, author, map[string]any{"id": 2, "name": "Banks"}))
	require.NoError(t, sess.Insert(ctx, book, map[string]any{"id": 1, "title": "The Dispossessed", "author_id": 1}))
	require.NoError(t, sess.Insert(ctx, book, map[string]any{"id": 2, "title": "A Wizard of Earthsea", "author_id": 1}))
	require.NoError(t, sess.Insert(ctx, book, map[string]any{"id": 3, "title": "Excession", "author_id": 2}))

	t.Run("class query uses the context session", func(t *testing.T) {
		q, err := book.Query(ctx)
		require.NoError(t, err)
		n, err := q.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		again, err := store.Get(ctx, book.Alias)
		require.NoError(t, err)
		assert.Equal(t, sess.ID(), again.ID())
	})

	t.Run("join follows the foreign key", func(t *testing.T) {
		q, err := book.Query(ctx)
		require.NoError(t, err)
		records, err := q.Join("author").
			Filter(mapping.Eq(author.C("name"), "Le Guin")).
			OrderBy(book.C("title")).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "A Wizard of Earthsea", records[0].Get("title"))
		assert.Equal(t, "The Dispossessed", records[1].Get("title"))
	})

	t.Run("join follows the backref", func(t *testing.T) {
		q, err := author.Query(ctx)
		require.NoError(t, err)
		n, err := q.Join("books").Filter(mapping.Eq(book.C("title"), "Excession")).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("many to many through the junction", func(t *testing.T) {
		require.NoError(t, sess.Insert(ctx, post, map[string]any{"id": 1, "body": "hello"}))
		require.NoError(t, sess.Insert(ctx, tag, map[string]any{"id": 1, "label": "go"}))
		require.NoError(t, sess.Insert(ctx, tag, map[string]any{"id": 2, "label": "sql"}))
		_, err := sess.Conn().Exec(ctx, `INSERT INTO "post_tags" ("post_id", "tag_id") VALUES (1, 1), (1, 2)`)
		require.NoError(t, err)

		q, err := post.Query(ctx, post, tag.C("label"))
		require.NoError(t, err)
		records, err := q.Join("tags").OrderBy(tag.C("label")).All(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "go", records[0].Get("tag.label"))
		assert.Equal(t, "sql", records[1].Get("tag.label"))
	})

	t.Run("enum values round trip through the database", func(t *testing.T) {
		require.NoError(t, sess.Insert(ctx, article, map[string]any{"id": 1, "status": StatusPublished}))

		q, err := article.Query(ctx)
		require.NoError(t, err)
		rec, err := q.Filter(mapping.Eq(article.C("status"), StatusPublished)).First(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusPublished, rec.Get("status"))

		q, err = article.Query(ctx)
		require.NoError(t, err)
		n, err := q.Filter(mapping.Eq(article.C("status"), 1)).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("closed session is replaced", func(t *testing.T) {
		require.NoError(t, store.Close(model.DefaultAlias))
		assert.True(t, sess.Closed())

		q, err := author.Query(ctx)
		require.NoError(t, err)
		n, err := q.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		fresh, ok := store.Peek(model.DefaultAlias)
		require.True(t, ok)
		assert.NotEqual(t, sess.ID(), fresh.ID())
	})

	t.Run("no store in context", func(t *testing.T) {
		_, err := author.Query(context.Background())
		assert.ErrorIs(t, err, runtime.ErrNoSessionStore)
	})
}
