package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

func TestInferRelationships(t *testing.T) {
	columns := []models.ColumnMeta{
		{Name: "id", Kind: models.ColumnKindNumeric, OrdinalPosition: 1},
		{Name: "user_id", Kind: models.ColumnKindNumeric, OrdinalPosition: 2},
		{Name: "category_id", Kind: models.ColumnKindNumeric, OrdinalPosition: 3},
		{Name: "isbn", Kind: models.ColumnKindText, OrdinalPosition: 4},
		{Name: "code", Kind: models.ColumnKindText, OrdinalPosition: 5},
		{Name: "address_id", Kind: models.ColumnKindOpaque, OrdinalPosition: 6},
	}
	fks := []models.ForeignKey{{
		Name:             "reviews_user_fk",
		Columns:          []string{"user_id"},
		ReferencedTable:  "users",
		ReferencedColumn: []string{"id"},
	}}
	keys := []datasource.TableKeyMetadata{
		{TableName: "users", PrimaryKeyColumns: []string{"id"}},
		{TableName: "reviews", PrimaryKeyColumns: []string{"id"}},
		{TableName: "categories", PrimaryKeyColumns: []string{"id"}},
		{TableName: "books", PrimaryKeyColumns: []string{"isbn"}},
		{TableName: "countries", PrimaryKeyColumns: []string{"code"}},
		{TableName: "addresses", PrimaryKeyColumns: []string{"id"}},
	}

	rels := InferRelationships("reviews", columns, fks, keys)
	require.Len(t, rels, 3)

	assert.Equal(t, models.Relationship{
		Column:           "user_id",
		ReferencedTable:  "users",
		ReferencedColumn: "id",
		Source:           models.RelationshipSourceForeignKey,
		Reason:           "declared foreign key reviews_user_fk",
	}, rels[0])

	assert.Equal(t, "category_id", rels[1].Column)
	assert.Equal(t, "categories", rels[1].ReferencedTable)
	assert.Equal(t, "id", rels[1].ReferencedColumn)
	assert.Equal(t, models.RelationshipSourceCandidate, rels[1].Source)

	assert.Equal(t, "isbn", rels[2].Column)
	assert.Equal(t, "books", rels[2].ReferencedTable)

	assert.Equal(t, []string{"books", "categories", "users"}, RelatedTables(rels))
}

func TestInferRelationships_SelfAndCompositeKeys(t *testing.T) {
	columns := []models.ColumnMeta{
		{Name: "employee_id", Kind: models.ColumnKindNumeric, OrdinalPosition: 1},
		{Name: "region_id", Kind: models.ColumnKindNumeric, OrdinalPosition: 2},
	}
	keys := []datasource.TableKeyMetadata{
		{TableName: "employees", PrimaryKeyColumns: []string{"employee_id"}},
		{TableName: "regions", PrimaryKeyColumns: []string{"country", "region_id"}},
	}

	rels := InferRelationships("employees", columns, nil, keys)
	require.Len(t, rels, 1, "a table never references itself by name alone")
	assert.Equal(t, "regions", rels[0].ReferencedTable)
	assert.Empty(t, rels[0].ReferencedColumn, "composite keys have no single target column")
}

func TestInferRelationships_Empty(t *testing.T) {
	rels := InferRelationships("t", nil, nil, nil)
	assert.NotNil(t, rels)
	assert.Empty(t, rels)
	assert.Equal(t, []string{}, RelatedTables(rels))
}
