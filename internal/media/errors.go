package media

import "fmt"

// ConversionError reports a failed format conversion. It is fatal for the
// job: nothing downstream can decode the input.
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ExtractionError reports a failed chunk extraction. The chunk loop treats
// it as recoverable and moves on to the next chunk.
type ExtractionError struct {
	Index int
	Start float64
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract chunk %d at %.1fs: %v", e.Index, e.Start, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
