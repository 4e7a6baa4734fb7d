package schema

// RevisionMetadata describes the contiguous block of revision rows written by
// one INSERT: revision ids [InsertRevisionID, InsertRevisionID+AffectedRows).
type RevisionMetadata struct {
	InsertRevisionID int64 `json:"insertRevisionId"`
	AffectedRows     int64 `json:"affectedRows"`
}

// End is the first revision id past the block
func (m RevisionMetadata) End() int64 {
	return m.InsertRevisionID + m.AffectedRows
}
