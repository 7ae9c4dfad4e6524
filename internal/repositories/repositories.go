package repositories

// rowScanner abstracts pgx.Row and pgx.Rows so scan helpers work for both
// single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}
