package codegen

import (
	"strings"

	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// Statements toggling foreign key checks around a projection rebuild
const (
	DisableForeignKeyChecks = "SET FOREIGN_KEY_CHECKS = 0;"
	EnableForeignKeyChecks  = "SET FOREIGN_KEY_CHECKS = 1;"
)

const aliveRevisionFilter = "WHERE NOT (r.`deleteCommitId` IS NOT NULL AND r.`deleteDate` IS NOT NULL)"

func latestRevisionJoin(m *schema.Model) string {
	return "INNER JOIN (SELECT `id`, MAX(`revisionId`) AS `revisionId` FROM " + QuoteIdentifier(m.RevisionTable()) +
		" GROUP BY `id`) latest ON latest.`revisionId` = r.`revisionId`"
}

// LiveCountStatement counts the ids of m whose latest revision is not a
// delete, which is the row count the fast table must hold.
func LiveCountStatement(m *schema.Model) string {
	return "SELECT COUNT(*) AS count FROM " + QuoteIdentifier(m.RevisionTable()) + " r " +
		latestRevisionJoin(m) + " " + aliveRevisionFilter
}

// RebuildStatements regenerates the fast table and the join tables of m from
// the latest revision of every id. Ids whose latest revision carries both
// delete markers are left out. Callers run them with foreign key checks
// disabled, inside one transaction.
func (g *DDLGenerator) RebuildStatements(m *schema.Model) []string {
	fast := QuoteIdentifier(m.Table())
	revision := QuoteIdentifier(m.RevisionTable())

	latest := latestRevisionJoin(m)
	alive := aliveRevisionFilter

	stmts := make([]string, 0)
	for _, f := range m.ForeignKeyArrays() {
		stmts = append(stmts, "DELETE FROM "+QuoteIdentifier(m.JoinTable(f))+";")
	}
	stmts = append(stmts, "DELETE FROM "+fast+";")

	names := make([]string, 0, len(m.Fields))
	for _, f := range m.FastFields() {
		names = append(names, f.Name)
	}
	selected := make([]string, 0, len(names))
	for _, n := range names {
		selected = append(selected, "r."+QuoteIdentifier(n))
	}
	stmts = append(stmts, "INSERT INTO "+fast+" ("+columnList(names)+")\n"+
		"SELECT "+strings.Join(selected, ", ")+"\n"+
		"FROM "+revision+" r\n"+
		latest+"\n"+
		alive+";")

	for _, f := range m.ForeignKeyArrays() {
		stmts = append(stmts, "INSERT INTO "+QuoteIdentifier(m.JoinTable(f))+" (ownerId, foreignId)\n"+
			"SELECT r.`id`, jt.foreignId\n"+
			"FROM "+revision+" r\n"+
			latest+"\n"+
			"CROSS JOIN JSON_TABLE(r."+QuoteIdentifier(f.Name)+", '$[*]' COLUMNS (foreignId INT PATH '$')) jt\n"+
			alive+";")
	}

	return stmts
}

// GenerateRebuild renders the rebuild of every model of the registry between
// the foreign key check toggles.
func (g *DDLGenerator) GenerateRebuild(registry *schema.Registry) string {
	parts := []string{DisableForeignKeyChecks}
	for _, m := range registry.All() {
		parts = append(parts, g.RebuildStatements(m)...)
	}
	parts = append(parts, EnableForeignKeyChecks)
	return strings.Join(parts, "\n\n") + "\n"
}
