package codegen

import (
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"

	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// GenerateStructs returns a Go file declaring one struct per model plus
// CreateBody/UpdateBody helpers producing the maps accepted by the revision
// writer.
func GenerateStructs(registry *schema.Registry, pkg string) *jen.File {
	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by revstore. DO NOT EDIT.")

	for _, m := range registry.All() {
		genStruct(f, m)
	}
	return f
}

// GoFieldName converts a field name to an exported Go identifier ("authorId" -> "AuthorID")
func GoFieldName(name string) string {
	id := inflect.Camelize(name)
	switch {
	case id == "Id":
		return "ID"
	case strings.HasSuffix(id, "Ids"):
		return strings.TrimSuffix(id, "Ids") + "IDs"
	case strings.HasSuffix(id, "Id"):
		return strings.TrimSuffix(id, "Id") + "ID"
	}
	return id
}

func genStruct(f *jen.File, m *schema.Model) {
	recv := strings.ToLower(m.Name[:1])

	fields := make([]jen.Code, 0, len(m.Fields))
	for _, field := range m.Fields {
		fields = append(fields, jen.Id(GoFieldName(field.Name)).Add(goType(field)).Tag(map[string]string{"json": field.Name}))
	}

	f.Commentf("%s is a current-state row of the %s table.", m.Name, QuoteIdentifier(m.Table()))
	f.Type().Id(m.Name).Struct(fields...)

	body := make([]jen.Code, 0)
	body = append(body, jen.Id("body").Op(":=").Map(jen.String()).Any().Values())
	for _, field := range m.CreateBodyFields() {
		switch field.Name {
		case schema.FieldEditCommitID, schema.FieldEditDate:
			continue
		}
		body = append(body, assignBody(recv, field)...)
	}
	body = append(body, jen.Return(jen.Id("body")))

	f.Commentf("CreateBody returns the declared fields of %s as a create body.", m.Name)
	f.Func().Params(jen.Id(recv).Op("*").Id(m.Name)).Id("CreateBody").Params().Map(jen.String()).Any().Block(body...)

	f.Commentf("UpdateBody returns CreateBody plus the id.")
	f.Func().Params(jen.Id(recv).Op("*").Id(m.Name)).Id("UpdateBody").Params().Map(jen.String()).Any().Block(
		jen.Id("body").Op(":=").Id(recv).Dot("CreateBody").Call(),
		jen.Id("body").Index(jen.Lit(schema.FieldID)).Op("=").Id(recv).Dot("ID"),
		jen.Return(jen.Id("body")),
	)
}

func assignBody(recv string, field *schema.Field) []jen.Code {
	key := jen.Id("body").Index(jen.Lit(field.Name))
	value := jen.Id(recv).Dot(GoFieldName(field.Name))

	if !isPointer(field) {
		return []jen.Code{key.Op("=").Add(value)}
	}
	return []jen.Code{
		jen.Id("body").Index(jen.Lit(field.Name)).Op("=").Nil(),
		jen.If(value.Clone().Op("!=").Nil()).Block(
			jen.Id("body").Index(jen.Lit(field.Name)).Op("=").Op("*").Add(jen.Id(recv).Dot(GoFieldName(field.Name))),
		),
	}
}

func isPointer(field *schema.Field) bool {
	if !field.Nullable {
		return false
	}
	switch field.Kind {
	case schema.KindJSON, schema.KindForeignKeyArray, schema.KindCustom:
		return false
	}
	return true
}

func goType(field *schema.Field) *jen.Statement {
	var base *jen.Statement
	switch field.Kind {
	case schema.KindBoolean:
		base = jen.Bool()
	case schema.KindString, schema.KindEnum, schema.KindRegex:
		base = jen.String()
	case schema.KindInteger, schema.KindForeignKey, schema.KindDatetime:
		base = jen.Int64()
	case schema.KindDecimal:
		base = jen.Float64()
	case schema.KindForeignKeyArray:
		return jen.Index().Int64()
	default:
		return jen.Any()
	}
	if isPointer(field) {
		return jen.Op("*").Add(base)
	}
	return base
}
