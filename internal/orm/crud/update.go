package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/revstore/internal/orm/schema"
	"github.com/conduit-lang/revstore/internal/orm/validation"
)

// Update writes a new revision for every partial body. Each body is merged
// over the current row of its id, so fields it omits keep their values.
// Bodies sharing an id are applied in order. An unknown id fails the whole
// batch with an *query.IntegrityError before any write, and a fractional
// id fails it with a validation error.
func (o *Operations) Update(ctx context.Context, bodies []map[string]any, commitID int64) (schema.RevisionMetadata, error) {
	if len(bodies) == 0 {
		return schema.RevisionMetadata{}, nil
	}

	validator := o.model.UpdateBodyValidator()
	if err := validation.Each(validator, bodies); err != nil {
		return schema.RevisionMetadata{}, err
	}

	bodyIDs := make([]int64, len(bodies))
	ids := make([]int64, 0, len(bodies))
	seen := make(map[int64]bool, len(bodies))
	for i, body := range bodies {
		id, ok := schema.AsInt64(body[schema.FieldID])
		if !ok {
			return schema.RevisionMetadata{}, &validation.ValidationError{Errors: []validation.FieldError{{
				Field:     fmt.Sprintf("[%d].%s", i, schema.FieldID),
				Validator: "integer",
				Value:     body[schema.FieldID],
			}}}
		}
		bodyIDs[i] = id
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	entities, err := o.Query().FindMany(ctx, ids)
	if err != nil {
		return schema.RevisionMetadata{}, err
	}
	current := make(map[int64]map[string]any, len(entities))
	for _, e := range entities {
		current[e.ID()] = e.Map()
	}

	now := o.nowMillis()
	records := make([]map[string]any, len(bodies))
	for i, body := range bodies {
		id := bodyIDs[i]
		record := copyRecord(current[id])
		for k, v := range body {
			record[k] = v
		}
		record[schema.FieldID] = id
		record[schema.FieldEditDate] = now
		record[schema.FieldEditCommitID] = commitID
		current[id] = record
		records[i] = record
	}

	if err := validation.Each(validator, records); err != nil {
		return schema.RevisionMetadata{}, err
	}

	meta, err := o.insert(ctx, o.model.Fields, records, false)
	if err != nil {
		return schema.RevisionMetadata{}, err
	}
	return meta, o.finish(ctx, OperationUpdate, commitID, meta, records)
}
