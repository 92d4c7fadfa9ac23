package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// genericKeyNames are primary-key column names shared by too many tables to
// identify any one of them.
var genericKeyNames = map[string]bool{
	"id": true, "uuid": true, "guid": true, "pk": true, "key": true,
	"code": true, "name": true, "type": true, "value": true, "rowid": true,
}

// InferRelationships reports declared foreign keys first, then candidate
// relationships from naming: a column named <singular(other)>_id, or a
// column whose name equals another table's single, non-generic primary-key
// column. Columns already covered by a foreign key get no candidates.
func InferRelationships(table string, columns []models.ColumnMeta, fks []models.ForeignKey, keys []datasource.TableKeyMetadata) []models.Relationship {
	rels := []models.Relationship{}
	declared := make(map[string]bool)

	for _, fk := range fks {
		for i, col := range fk.Columns {
			ref := ""
			if i < len(fk.ReferencedColumn) {
				ref = fk.ReferencedColumn[i]
			}
			declared[strings.ToLower(col)] = true
			rels = append(rels, models.Relationship{
				Column:           col,
				ReferencedTable:  fk.ReferencedTable,
				ReferencedColumn: ref,
				Source:           models.RelationshipSourceForeignKey,
				Reason:           declaredReason(fk.Name),
			})
		}
	}

	// Tables sorted by name so candidate order does not depend on catalog order.
	others := make([]datasource.TableKeyMetadata, 0, len(keys))
	for _, k := range keys {
		if !strings.EqualFold(k.TableName, table) {
			others = append(others, k)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].TableName < others[j].TableName })

	for _, col := range columns {
		lower := strings.ToLower(col.Name)
		if declared[lower] || col.Kind == models.ColumnKindOpaque || col.Kind == models.ColumnKindBoolean {
			continue
		}
		for _, other := range others {
			if rel, ok := candidateFor(col.Name, lower, other); ok {
				rels = append(rels, rel)
			}
		}
	}
	return rels
}

func declaredReason(name string) string {
	if name == "" {
		return "declared foreign key"
	}
	return "declared foreign key " + name
}

func candidateFor(column, lower string, other datasource.TableKeyMetadata) (models.Relationship, bool) {
	var singlePK string
	if len(other.PrimaryKeyColumns) == 1 {
		singlePK = other.PrimaryKeyColumns[0]
	}

	singular := strings.ToLower(inflection.Singular(other.TableName))
	if lower == singular+"_id" {
		return models.Relationship{
			Column:           column,
			ReferencedTable:  other.TableName,
			ReferencedColumn: singlePK,
			Source:           models.RelationshipSourceCandidate,
			Reason:           fmt.Sprintf("column name matches %s_id", singular),
		}, true
	}

	if singlePK != "" && !genericKeyNames[strings.ToLower(singlePK)] && strings.EqualFold(column, singlePK) {
		return models.Relationship{
			Column:           column,
			ReferencedTable:  other.TableName,
			ReferencedColumn: singlePK,
			Source:           models.RelationshipSourceCandidate,
			Reason:           fmt.Sprintf("column name matches the primary key of %s", other.TableName),
		}, true
	}
	return models.Relationship{}, false
}

// RelatedTables is the sorted set of tables the relationships point at.
func RelatedTables(rels []models.Relationship) []string {
	seen := make(map[string]bool)
	tables := []string{}
	for _, r := range rels {
		if !seen[r.ReferencedTable] {
			seen[r.ReferencedTable] = true
			tables = append(tables, r.ReferencedTable)
		}
	}
	sort.Strings(tables)
	return tables
}
