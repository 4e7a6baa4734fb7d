// Package codegen derives MySQL DDL, revision triggers, projection rebuild
// statements, dbdiagram.io exports and Go structs from schema models.
package codegen

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// DDLGenerator generates MySQL statements for revisioned models
type DDLGenerator struct {
	engine  string
	charset string
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator() *DDLGenerator {
	return &DDLGenerator{
		engine:  "InnoDB",
		charset: "utf8mb4",
	}
}

// QuoteIdentifier quotes a MySQL identifier with backticks
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// TableStatements returns, in execution order: the revision table, the fast
// table, one join table per foreign-key array, the join table foreign keys,
// the model's extra DDL and the fast table foreign keys. It is
// CreateStatements followed by ConstraintStatements.
func (g *DDLGenerator) TableStatements(m *schema.Model) []string {
	return append(g.CreateStatements(m), g.ConstraintStatements(m)...)
}

// CreateStatements creates the revision, fast and join tables of m. They
// reference no other model.
func (g *DDLGenerator) CreateStatements(m *schema.Model) []string {
	revision := QuoteIdentifier(m.RevisionTable())
	fast := QuoteIdentifier(m.Table())

	revisionColumns := []string{"`revisionId` int(11) NOT NULL"}
	for _, f := range m.Fields {
		revisionColumns = append(revisionColumns, columnDefinition(f))
	}
	for _, f := range m.RevisionFields {
		revisionColumns = append(revisionColumns, columnDefinition(f))
	}

	fastColumns := make([]string, 0, len(m.Fields))
	for _, f := range m.FastFields() {
		fastColumns = append(fastColumns, columnDefinition(f))
	}

	stmts := []string{
		g.createTable(revision, revisionColumns),
		"ALTER TABLE " + revision + " ADD PRIMARY KEY (`revisionId`);",
		"ALTER TABLE " + revision + " CHANGE `revisionId` `revisionId` INT(11) NOT NULL AUTO_INCREMENT;",
		g.createTable(fast, fastColumns),
		"ALTER TABLE " + fast + " ADD PRIMARY KEY (`id`);",
		"ALTER TABLE " + fast + " CHANGE `id` `id` INT(11) NOT NULL AUTO_INCREMENT;",
	}
	for _, f := range m.ForeignKeyArrays() {
		stmts = append(stmts, "CREATE TABLE "+QuoteIdentifier(m.JoinTable(f))+" (ownerId INT(11) NOT NULL, foreignId INT(11) NOT NULL);")
	}
	return stmts
}

// ConstraintStatements returns the join table foreign keys, the extra DDL and
// the fast table foreign keys of m. They need the tables of every referenced
// model to exist.
func (g *DDLGenerator) ConstraintStatements(m *schema.Model) []string {
	fast := QuoteIdentifier(m.Table())

	var stmts []string
	for _, f := range m.ForeignKeyArrays() {
		stmts = append(stmts, "ALTER TABLE "+QuoteIdentifier(m.JoinTable(f))+"\n"+
			"ADD FOREIGN KEY (ownerId) REFERENCES "+fast+"(`id`),\n"+
			"ADD FOREIGN KEY (foreignId) REFERENCES "+QuoteIdentifier(f.ForeignKey.Table())+"(`id`);")
	}

	stmts = append(stmts, m.ExtraDDL...)

	if fks := m.ForeignKeys(); len(fks) > 0 {
		clauses := make([]string, 0, len(fks))
		for _, f := range fks {
			clause := "ADD FOREIGN KEY (" + QuoteIdentifier(f.Name) + ") REFERENCES " + QuoteIdentifier(f.ForeignKey.Table()) + "(`id`)"
			if f.ForeignKeyMutator != "" {
				clause += " " + f.ForeignKeyMutator
			}
			clauses = append(clauses, clause)
		}
		stmts = append(stmts, "ALTER TABLE "+fast+"\n"+strings.Join(clauses, ",\n")+";")
	}

	return stmts
}

// GenerateTables renders TableStatements under a banner comment
func (g *DDLGenerator) GenerateTables(m *schema.Model) string {
	return banner(m.Name) + "\n\n" + strings.Join(g.TableStatements(m), "\n\n") + "\n"
}

// GenerateSchema renders the tables of every model, then their constraints,
// then every trigger. Constraints follow all tables, so models may reference
// models registered after them.
func (g *DDLGenerator) GenerateSchema(registry *schema.Registry) string {
	return g.GenerateModels(registry.All())
}

// GenerateModels renders the tables, constraints and triggers of models in
// the same phases as GenerateSchema
func (g *DDLGenerator) GenerateModels(models []*schema.Model) string {
	var b strings.Builder
	for _, m := range models {
		b.WriteString(banner(m.Name))
		b.WriteString("\n\n")
		b.WriteString(strings.Join(g.CreateStatements(m), "\n\n"))
		b.WriteString("\n\n")
	}
	for _, m := range models {
		stmts := g.ConstraintStatements(m)
		if len(stmts) == 0 {
			continue
		}
		b.WriteString(banner(m.Name + " constraints"))
		b.WriteString("\n\n")
		b.WriteString(strings.Join(stmts, "\n\n"))
		b.WriteString("\n\n")
	}
	for i, m := range models {
		b.WriteString(g.GenerateTriggers(m))
		if i < len(models)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func banner(title string) string {
	return fmt.Sprintf("-- ---------------------- %s ----------------------", title)
}

func (g *DDLGenerator) createTable(name string, columns []string) string {
	return "CREATE TABLE " + name + " (\n  " + strings.Join(columns, ",\n  ") +
		"\n) ENGINE=" + g.engine + " DEFAULT CHARSET=" + g.charset + ";"
}

func columnDefinition(f *schema.Field) string {
	return QuoteIdentifier(f.Name) + " " + f.SQLType
}
