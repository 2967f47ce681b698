package export

// Column describes a single exported column. Width is in millimetres for
// PDF rendering; zero means "share the remaining width evenly".
type Column struct {
	Header string
	Width  float64
}

// Table is the renderable form of a tracker matrix or audit listing.
type Table struct {
	Title   string
	Columns []Column
	Rows    [][]string
}
