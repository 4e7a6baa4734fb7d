package codegen

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// DiagramTable renders a dbdiagram.io Table block. Implicit revision
// bookkeeping columns are omitted; column types drop their size and modifiers.
func DiagramTable(m *schema.Model) string {
	lines := []string{"Table " + m.Name + " {", "id int PK"}
	for _, f := range m.Fields {
		switch f.Name {
		case schema.FieldID, schema.FieldEditCommitID, schema.FieldEditDate:
			continue
		}
		lines = append(lines, f.Name+" "+baseType(f.SQLType))
	}
	lines = append(lines, "}")
	return strings.Join(lines, "\n")
}

// DiagramRefs renders one dbdiagram.io Ref line per foreign key
func DiagramRefs(m *schema.Model) string {
	refs := make([]string, 0)
	for _, f := range m.Fields {
		if f.ForeignKey == nil {
			continue
		}
		refs = append(refs, fmt.Sprintf("Ref : %s.%s > %s.id", m.Name, f.Name, f.ForeignKey.Name))
	}
	return strings.Join(refs, "\n")
}

// GenerateDiagram renders every table of the registry followed by every ref
func GenerateDiagram(registry *schema.Registry) string {
	blocks := make([]string, 0)
	refs := make([]string, 0)
	for _, m := range registry.All() {
		blocks = append(blocks, DiagramTable(m))
		if r := DiagramRefs(m); r != "" {
			refs = append(refs, r)
		}
	}
	if len(refs) > 0 {
		blocks = append(blocks, strings.Join(refs, "\n"))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func baseType(sqlType string) string {
	word := strings.SplitN(sqlType, " ", 2)[0]
	return strings.SplitN(word, "(", 2)[0]
}
