package operations

// Kind classifies the result of executing an operation. Callers branch on
// Kind; Message is for humans only.
type Kind string

const (
	KindSuccess         Kind = "success"
	KindValidationError Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindStoreError      Kind = "store_error"
	// KindAlreadyCompleted is reserved. Completing a completed task is a
	// no-op success, so the executor never returns it.
	KindAlreadyCompleted Kind = "already_completed"
)

// Outcome is the structured result of one operation.
type Outcome struct {
	Kind    Kind   `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

func Success(result any) Outcome {
	return Outcome{Kind: KindSuccess, Result: result}
}

func Invalid(field, msg string) Outcome {
	return Outcome{Kind: KindValidationError, Field: field, Message: msg}
}

func NotFound(msg string) Outcome {
	return Outcome{Kind: KindNotFound, Message: msg}
}

// StoreFailure never carries the underlying error; that is logged.
func StoreFailure() Outcome {
	return Outcome{Kind: KindStoreError, Message: "the task store is unavailable, try again later"}
}

// ListResult is the success payload of list_tasks.
type ListResult struct {
	Tasks []TaskView `json:"tasks"`
	Count int        `json:"count"`
	Total int        `json:"total"`
}
