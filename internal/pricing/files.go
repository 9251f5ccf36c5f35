package pricing

import "github.com/Lllllllleong/translationquoteflow/internal/models"

// FilesFromQuoteFiles builds aggregator input from stored file rows. Only
// files whose analysis succeeded contribute pages; the rest bill zero until
// they are re-run.
func FilesFromQuoteFiles(rows []models.QuoteFile) []File {
	files := make([]File, 0, len(rows))
	for _, row := range rows {
		f := File{Name: row.FileName}
		if row.Status == models.StatusSuccess {
			for _, n := range models.SortedPageNumbers(row.PageWordCounts) {
				key := models.PageKey(n)
				c, _ := models.ParseComplexity(row.PageComplexity[key])
				f.Pages = append(f.Pages, Page{
					WordCount:  row.PageWordCounts[key],
					Complexity: c,
				})
			}
		}
		files = append(files, f)
	}
	return files
}

// RequestFor assembles a pricing request for a submission and its files.
func RequestFor(sub *models.QuoteSubmission, rows []models.QuoteFile) Request {
	req := Request{Files: FilesFromQuoteFiles(rows)}
	if sub != nil {
		req.IntendedUse = sub.IntendedUse
		req.SourceLanguage = sub.SourceLanguage
		req.TargetLanguage = sub.TargetLanguage
	}
	return req
}
