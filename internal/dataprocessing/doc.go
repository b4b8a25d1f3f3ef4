// Package dataprocessing turns raw objects into attribute records and
// consolidated entity files into the corpus summary.
//
// # Extraction
//
// A Decoder parses one object's bytes into a Decoded record; DICOMDecoder
// does this for DICOM Part 10 payloads. Extract then projects the decoded
// record onto the configured attribute list:
//
//	decoded, err := dataprocessing.NewDICOMDecoder(logger).Decode(raw)
//	if err != nil {
//	    return err // DECODE
//	}
//	rec, err := dataprocessing.Extract(decoded, catalog.Attributes)
//
// Extract is pure. Attributes the object lacks become absent values.
//
// # Summary
//
// Summarizer walks the entity store and computes a domain.SummaryRecord:
// study and instance counts, summed slice thickness, average slices per
// study and the thickness distribution over every study.
//
//	s := dataprocessing.NewSummarizer(logger, dataprocessing.DefaultSummarizerConfig())
//	rec, err := s.Summarize(ctx, "/data/transformed")
//	err = s.WriteSummary(ctx, "/data/Summary.csv", rec)
//
// A required column missing from any entity file aborts the summary with an
// AGGREGATION error.
package dataprocessing
