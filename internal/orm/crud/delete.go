package crud

import (
	"context"

	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// Delete re-emits the current row of every id with deleteCommitId and
// deleteDate set; the trigger then removes the fast table row. The revision
// history keeps every row. Unknown ids fail with an *query.IntegrityError.
func (o *Operations) Delete(ctx context.Context, ids []int64, commitID int64) (schema.RevisionMetadata, error) {
	if len(ids) == 0 {
		return schema.RevisionMetadata{}, nil
	}

	entities, err := o.Query().FindMany(ctx, ids)
	if err != nil {
		return schema.RevisionMetadata{}, err
	}

	now := o.nowMillis()
	records := make([]map[string]any, len(entities))
	for i, e := range entities {
		record := e.Map()
		record[schema.FieldDeleteCommitID] = commitID
		record[schema.FieldDeleteDate] = now
		records[i] = record
	}

	fields := make([]*schema.Field, 0, len(o.model.Fields)+len(o.model.RevisionFields))
	fields = append(fields, o.model.Fields...)
	fields = append(fields, o.model.RevisionFields...)

	meta, err := o.insert(ctx, fields, records, false)
	if err != nil {
		return schema.RevisionMetadata{}, err
	}
	return meta, o.finish(ctx, OperationDelete, commitID, meta, records)
}
