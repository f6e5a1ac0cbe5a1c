package models

// Record is one destination number and the text to send to it
type Record struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// Row is a data row of the input file, in file order.
// Rows with a SkipReason are never handed to the session.
type Row struct {
	Index      int    `json:"index"` // 1-based spreadsheet line number
	Record     Record `json:"record"`
	SkipReason string `json:"skipReason,omitempty"`
}

// Skipped reports whether the row was rejected at load time
func (r Row) Skipped() bool {
	return r.SkipReason != ""
}

// Batch is the loaded content of one spreadsheet
type Batch struct {
	Source string `json:"source"`
	Rows   []Row  `json:"rows"`
}

// Sendable counts rows that will be handed to the session
func (b *Batch) Sendable() int {
	n := 0
	for _, row := range b.Rows {
		if !row.Skipped() {
			n++
		}
	}
	return n
}
