// Package progress provides live progress reporting for year imports.
//
// This package outputs human-readable progress information to stderr,
// including bytes fetched, rows seen, rows committed and throughput.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Year:    2023,
//	    Locator: url,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Update as the stream advances
//	reporter.BytesFetched(n)
//	reporter.RowsSeen(1)
//	reporter.BatchCommitted(rows)
//
// # Output Format
//
//	[dvfload] year 2023: fetching https://files.data.gouv.fr/geo-dvf/latest/csv/2023/full.csv.gz
//	[dvfload] year 2023: 112.40 MB fetched | 412000 rows seen | 390000 committed | 2.1 MB/s
//	[dvfload] year 2023: done in 4m 12s | 838291 rows seen | 812113 committed | 4 anomalies
package progress
