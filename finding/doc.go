// Package finding provides the vulnerability and audit result types produced by
// a contract audit, together with the severity ordering shared by sorting and
// grouping code.
//
// # Severity Levels
//
// Severity is ranked Critical < High < Medium < Low. The rank table is the only
// place that order is defined; callers compare severities with CompareSeverity
// or Rank instead of comparing strings.
//
// # Audit Results
//
// AuditResult is the structured response of the analysis service. Once it is
// attached to a scan job it is treated as immutable.
//
//	result, err := finding.DecodeResult(body)
//	if err != nil {
//		return err
//	}
//	for _, v := range result.BySeverity(finding.SeverityCritical) {
//		fmt.Println(v.Title)
//	}
package finding
