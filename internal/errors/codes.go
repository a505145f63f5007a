// Package errors provides structured error handling for localrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, snapshot)
//   - 3XX: Extraction errors (unsupported/corrupt content)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (index, embedding)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryExtract indicates content extraction errors.
	CategoryExtract Category = "EXTRACT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound    = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileUnreadable  = "ERR_202_FILE_UNREADABLE"
	ErrCodeSnapshotWrite   = "ERR_203_SNAPSHOT_WRITE"
	ErrCodeSnapshotCorrupt = "ERR_204_SNAPSHOT_CORRUPT"
	ErrCodeLockHeld        = "ERR_205_LOCK_HELD"

	// Extraction errors (300-399)
	ErrCodeUnsupportedFormat = "ERR_301_UNSUPPORTED_FORMAT"
	ErrCodeContentCorrupt    = "ERR_302_CONTENT_CORRUPT"
	ErrCodeEmptyContent      = "ERR_303_EMPTY_CONTENT"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPath  = "ERR_402_INVALID_PATH"
	ErrCodeQueryEmpty   = "ERR_403_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeIndexWrite      = "ERR_503_INDEX_WRITE"
	ErrCodeIndexCorrupt    = "ERR_504_INDEX_CORRUPT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryExtract
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Snapshot corruption is a warning: the store degrades to empty state and
// reprocesses, it never aborts startup.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeLockHeld:
		return SeverityFatal
	case ErrCodeSnapshotCorrupt, ErrCodeEmptyContent:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// retryableCodes are errors where the same operation may succeed next cycle.
// Extraction errors are deliberately absent: an unsupported or corrupt file
// stays broken until its content changes, so retrying every cycle is waste.
var retryableCodes = map[string]bool{
	ErrCodeFileUnreadable:  true,
	ErrCodeSnapshotWrite:   true,
	ErrCodeEmbeddingFailed: true,
	ErrCodeIndexWrite:      true,
}

// isRetryableCode reports whether operations failing with this code
// should be retried on the next reconciliation cycle.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
