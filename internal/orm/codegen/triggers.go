package codegen

import (
	"strings"

	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// TriggerName is the BEFORE INSERT trigger installed on the revision table
func TriggerName(m *schema.Model) string {
	return "before_insert_" + strings.ToLower(m.Name) + "_revision"
}

// TriggerStatements returns the DROP and CREATE statements of the revision
// trigger. Each revision row inserted either creates, restores or updates the
// fast row, then rewrites the join rows of every foreign-key array. A row
// carrying both delete markers removes the fast row instead.
func (g *DDLGenerator) TriggerStatements(m *schema.Model) []string {
	name := TriggerName(m)
	fast := QuoteIdentifier(m.Table())

	var withID, withoutID []string
	for _, f := range m.FastFields() {
		withID = append(withID, f.Name)
		if f.Name != schema.FieldID {
			withoutID = append(withoutID, f.Name)
		}
	}

	var b strings.Builder
	b.WriteString("CREATE TRIGGER " + name + "\n")
	b.WriteString("BEFORE INSERT ON " + QuoteIdentifier(m.RevisionTable()) + " FOR EACH ROW BEGIN\n")
	b.WriteString("  DECLARE i INT DEFAULT 0;\n\n")

	b.WriteString("  IF NEW.id IS NULL THEN\n")
	b.WriteString("    INSERT INTO " + fast + " (" + columnList(withoutID) + ")\n")
	b.WriteString("    VALUES (" + newList(withoutID) + ");\n\n")
	b.WriteString("    SET NEW.id = LAST_INSERT_ID();\n")
	b.WriteString("  ELSEIF (SELECT COUNT(*) FROM " + fast + " WHERE id = NEW.id) = 0 THEN\n")
	b.WriteString("    INSERT INTO " + fast + " (" + columnList(withID) + ")\n")
	b.WriteString("    VALUES (" + newList(withID) + ");\n")
	b.WriteString("  ELSE\n")
	b.WriteString("    UPDATE " + fast + "\n")
	b.WriteString("    SET " + assignmentList(withoutID) + "\n")
	b.WriteString("    WHERE id = NEW.id;\n")
	b.WriteString("  END IF;\n\n")

	arrays := m.ForeignKeyArrays()
	for _, f := range arrays {
		b.WriteString("  DELETE FROM " + QuoteIdentifier(m.JoinTable(f)) + " WHERE ownerId = NEW.id;\n")
	}
	if len(arrays) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("  IF NEW.deleteCommitId IS NOT NULL AND NEW.deleteDate IS NOT NULL THEN\n")
	b.WriteString("    DELETE FROM " + fast + " WHERE id = NEW.id;\n")
	if len(arrays) > 0 {
		b.WriteString("  ELSE\n")
		for _, f := range arrays {
			b.WriteString("    SET i = 0;\n")
			b.WriteString("    WHILE i < JSON_LENGTH(NEW." + f.Name + ") DO\n")
			b.WriteString("      INSERT INTO " + QuoteIdentifier(m.JoinTable(f)) + " (ownerId, foreignId) VALUES (NEW.id, JSON_EXTRACT(NEW." + f.Name + ", CONCAT('$[', i, ']')));\n")
			b.WriteString("      SET i = i + 1;\n")
			b.WriteString("    END WHILE;\n")
		}
	}
	b.WriteString("  END IF;\n")
	b.WriteString("END;")

	return []string{
		"DROP TRIGGER IF EXISTS " + name + ";",
		b.String(),
	}
}

// GenerateTriggers renders TriggerStatements
func (g *DDLGenerator) GenerateTriggers(m *schema.Model) string {
	return strings.Join(g.TriggerStatements(m), "\n\n") + "\n"
}

func columnList(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, QuoteIdentifier(n))
	}
	return strings.Join(quoted, ", ")
}

func newList(names []string) string {
	refs := make([]string, 0, len(names))
	for _, n := range names {
		refs = append(refs, "NEW."+n)
	}
	return strings.Join(refs, ", ")
}

func assignmentList(names []string) string {
	sets := make([]string, 0, len(names))
	for _, n := range names {
		sets = append(sets, QuoteIdentifier(n)+" = NEW."+n)
	}
	return strings.Join(sets, ", ")
}
