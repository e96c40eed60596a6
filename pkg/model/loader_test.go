package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const librarySource = `package models

import "time"

// abstract
type Base struct {
	Created time.Time ` + "`po:\"created\"`" + `
}

// table_name: writers
type Author struct {
	Base
	ID   int    ` + "`po:\"id,primaryKey,serial\"`" + `
	Name string ` + "`po:\"name,varchar(100)\"`" + `
}

type Book struct {
	ID     int64   ` + "`po:\"id,primaryKey,bigserial\"`" + `
	Author *Author ` + "`po:\"author,foreignKey,relatedName(books)\"`" + `
	Tags   []Tag   ` + "`po:\"tags,manyToMany\"`" + `
}

// database: archive
type Tag struct {
	ID    int    ` + "`po:\"id,primaryKey,serial\"`" + `
	Label string ` + "`po:\"label,text\"`" + `
}

// proxy
type RecentBook struct {
	Book ` + "`po:\"book\"`" + `
}

type helper struct {
	count int
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadModelsFromPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models.go", librarySource)
	writeFile(t, dir, "models_test.go", "package models\n\ntype Fixture struct {\n\tID int `po:\"id,primaryKey\"`\n}\n")

	set := NewSet()
	n, err := LoadModelsFromPath(dir, set)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"Author", "Book", "RecentBook", "Tag"}, set.Names())
	require.NoError(t, set.Resolve())

	t.Run("directives", func(t *testing.T) {
		assert.Equal(t, "writers", set.Get("Author").Table)
		assert.Equal(t, "archive", set.Get("Tag").Database)

		proxy := set.Get("RecentBook")
		assert.True(t, proxy.Proxy)
		assert.Equal(t, "book", proxy.Table)
		assert.Same(t, set.Get("Book"), proxy.Parent)
	})

	t.Run("abstract base fields are inlined", func(t *testing.T) {
		author := set.Get("Author")
		require.Len(t, author.Fields, 3)
		assert.Equal(t, "created", author.Fields[0].Name)
		assert.Equal(t, "DateTimeField", author.Fields[0].Kind)
		assert.Nil(t, author.GoType)
	})

	t.Run("relations", func(t *testing.T) {
		book := set.Get("Book")
		assert.Equal(t, "BigAutoField", book.Field("id").Kind)
		assert.Same(t, set.Get("Author"), book.Field("author").Relation.Target)

		tags := book.Field("tags")
		require.True(t, tags.IsManyToMany())
		assert.Equal(t, "book_tags", tags.Relation.ThroughModel.Table)
		assert.Equal(t, "book_id", tags.Relation.ThroughColumn)
		assert.Equal(t, "tag_id", tags.Relation.ThroughTargetColumn)
	})
}

func TestLoadModelsFromPath_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadModelsFromPath(filepath.Join(dir, "missing"), NewSet())
	assert.Error(t, err)

	_, err = LoadModelsFromPath(dir, NewSet())
	assert.Error(t, err, "empty directory")

	txt := writeFile(t, dir, "notes.txt", "hello")
	_, err = LoadModelsFromPath(txt, NewSet())
	assert.Error(t, err)

	broken := writeFile(t, dir, "broken.go", "package models\n\ntype X struct {")
	_, err = LoadModelsFromPath(broken, NewSet())
	assert.Error(t, err)
}
