package conn

// Rows is a fully buffered result set. Column names keep their SELECT aliases,
// which may contain dots ("book.title").
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Map returns row i keyed by column name
func (r *Rows) Map(i int) map[string]any {
	row := make(map[string]any, len(r.Columns))
	for j, col := range r.Columns {
		row[col] = r.Values[i][j]
	}
	return row
}

// Maps returns every row keyed by column name
func (r *Rows) Maps() []map[string]any {
	out := make([]map[string]any, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		out = append(out, r.Map(i))
	}
	return out
}

// Scalar returns the first column of the first row
func (r *Rows) Scalar() (any, bool) {
	if r.Len() == 0 || len(r.Columns) == 0 {
		return nil, false
	}
	return r.Values[0][0], true
}
