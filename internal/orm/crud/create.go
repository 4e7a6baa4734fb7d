package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/revstore/internal/orm/query"
	"github.com/conduit-lang/revstore/internal/orm/schema"
	"github.com/conduit-lang/revstore/internal/orm/validation"
)

// Create inserts the first revision of every body in a single statement.
// Bodies are stamped with editDate and editCommitId and must match the
// create-body shape exactly; one invalid body aborts the whole batch before
// any SQL runs. An empty batch is a no-op returning zero metadata.
func (o *Operations) Create(ctx context.Context, bodies []map[string]any, commitID int64) (schema.RevisionMetadata, error) {
	if len(bodies) == 0 {
		return schema.RevisionMetadata{}, nil
	}

	now := o.nowMillis()
	records := make([]map[string]any, len(bodies))
	for i, body := range bodies {
		record := copyRecord(body)
		record[schema.FieldEditDate] = now
		record[schema.FieldEditCommitID] = commitID
		records[i] = record
	}

	if err := validation.Each(o.model.CreateBodyValidator(), records); err != nil {
		return schema.RevisionMetadata{}, err
	}

	meta, err := o.insert(ctx, o.model.CreateBodyFields(), records, true)
	if err != nil {
		return schema.RevisionMetadata{}, err
	}
	return meta, o.finish(ctx, OperationCreate, commitID, meta, records)
}

// CreateAndGetIDs is Create followed by the resolution of the generated ids,
// in body order
func (o *Operations) CreateAndGetIDs(ctx context.Context, bodies []map[string]any, commitID int64) ([]int64, error) {
	if len(bodies) == 0 {
		return []int64{}, nil
	}

	meta, err := o.Create(ctx, bodies, commitID)
	if err != nil {
		return nil, err
	}
	return o.IDsFromRevisionMetadata(ctx, meta)
}

// IDsFromRevisionMetadata reads the entity ids of the revision rows written
// by one INSERT. The block must hold exactly AffectedRows rows; a shortfall
// means another writer interleaved and is reported as an *IntegrityError.
func (o *Operations) IDsFromRevisionMetadata(ctx context.Context, meta schema.RevisionMetadata) ([]int64, error) {
	sql := fmt.Sprintf("SELECT `id` FROM `%s` WHERE `revisionId` >= ? AND `revisionId` < ? ORDER BY `revisionId`",
		o.model.RevisionTable())

	rows, err := o.exec.Query(ctx, sql, []any{meta.InsertRevisionID, meta.End()})
	if err != nil {
		return nil, ConvertDBError(err)
	}

	ids := make([]int64, 0, rows.Len())
	for _, values := range rows.Values {
		id, ok := schema.AsInt64(values[0])
		if !ok {
			return nil, fmt.Errorf("revision id %v is not an integer", values[0])
		}
		ids = append(ids, id)
	}

	if int64(len(ids)) != meta.AffectedRows {
		return nil, &query.IntegrityError{
			Op:      "create",
			Message: fmt.Sprintf("expected %d revisions in [%d, %d), got %d", meta.AffectedRows, meta.InsertRevisionID, meta.End(), len(ids)),
		}
	}
	return ids, nil
}
