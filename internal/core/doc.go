// Package core runs channel templates over product files.
//
// It holds all orchestration logic independent of any transport layer, so
// the HTTP server, the edgectl CLI and tests share it unchanged.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Templates: per-channel attribute lists, each with a source column, a
//     transform rule and validation rules. Loaded from YAML, TOML or JSON
//     files into a process-wide registry.
//   - CompiledTemplate: a template with every pipeline and rule resolved
//     once, used to process rows.
//   - Service: the entry point for imports, exports and job queries.
//   - JobLimiter: bounds how many imports and exports run at once.
//
// # Template Registry
//
// Templates are registered at startup with [LoadTemplateDir], or in code
// with [Register]:
//
//	core.MustRegister(&core.Template{
//	    ID:      "amazon_products",
//	    Channel: "amazon",
//	    Key:     "sku",
//	    Attributes: []core.Attribute{
//	        {Name: "sku", Column: "SKU", Required: true, Transform: "strip + uppercase"},
//	        {Name: "price", DataType: core.TypeNumber, Transform: "clean_numeric_value + round_decimal|2"},
//	    },
//	})
//
// # Import and Export
//
// Both walk the job stages recorded in the jobs table:
//
//  1. The template is looked up and compiled
//  2. Rows are read from a [fileio.Source] in input order
//  3. Each row is mapped, transformed and validated ([CompiledTemplate.Process])
//  4. The outcome of every row is cached as a completeness record
//  5. Exports build one file per requested format
//
// A failed transform either keeps the input value and marks the row
// invalid ([PolicyFallback]) or rejects the row ([PolicyReject]). A rejects
// step always rejects the row.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code for support reference:
//
//   - TRN001-TRN005: transform rules
//   - RULE001-RULE002: validation rules
//   - TPL001-TPL003: templates
//   - FILE001-FILE004: input files
//   - DB001-DB005: the store
//   - JOB001-JOB002: jobs
package core
