package crawler

// BatchStatus is the variant of a BatchResult.
type BatchStatus int

const (
	// BatchSuccess: every requested identifier came back.
	BatchSuccess BatchStatus = iota
	// BatchPartialFailure: the call succeeded but some identifiers were
	// missing from the response; they are listed in FailedIDs.
	BatchPartialFailure
	// BatchFailure: retries were exhausted, no records. Err holds the reason.
	BatchFailure
)

func (s BatchStatus) String() string {
	switch s {
	case BatchSuccess:
		return "success"
	case BatchPartialFailure:
		return "partial"
	case BatchFailure:
		return "failure"
	}
	return "unknown"
}

// BatchResult is the outcome of one detail batch, consumed by the pipeline.
type BatchResult struct {
	Index     int
	IDs       []string
	Status    BatchStatus
	Records   []RawRecord
	FailedIDs []string
	Attempts  int
	Err       error
}
