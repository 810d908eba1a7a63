package writer

const (
	minChunkRows = 1000
	maxChunkRows = 10000

	// Keep well under PostgreSQL's 65535 prepared-statement
	// parameter limit.
	maxChunkParams = 65000

	// Rough per-chunk payload target. Wide rows get smaller chunks
	// so transaction size and memory stay bounded.
	targetChunkBytes = 4 << 20

	sampleRows = 100
)

// chunkSizeFor derives a chunk size from the records' estimated row
// width, clamped to a sane range and to the statement parameter cap.
func chunkSizeFor(columns []string, records [][]any) int {
	rowCap := maxChunkParams / len(columns)

	width := estimateRowWidth(records)
	size := targetChunkBytes / width

	if size < minChunkRows {
		size = minChunkRows
	}
	if size > maxChunkRows {
		size = maxChunkRows
	}
	if size > rowCap {
		size = rowCap
	}
	return size
}

// estimateRowWidth samples the head of the slice and guesses bytes
// per row. Exactness does not matter; it only steers chunk sizing.
func estimateRowWidth(records [][]any) int {
	n := len(records)
	if n == 0 {
		return 64
	}
	if n > sampleRows {
		n = sampleRows
	}

	var total int
	for _, rec := range records[:n] {
		for _, v := range rec {
			switch x := v.(type) {
			case nil:
				total += 4
			case string:
				total += len(x) + 4
			case []byte:
				total += len(x) + 4
			default:
				total += 8
			}
		}
	}

	width := total / n
	if width < 16 {
		width = 16
	}
	return width
}
