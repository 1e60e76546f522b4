package store

import "database/sql"

func collectSearch(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		t, err := scanTransaction(rows, &r.VendorKey, &r.Snippet)
		if err != nil {
			return nil, err
		}
		r.Transaction = t
		out = append(out, r)
	}
	return out, rows.Err()
}
