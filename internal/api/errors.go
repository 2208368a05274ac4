package api

// 错误码
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeTooManyURLs  = "TOO_MANY_URLS"
	ErrCodeJobNotFound  = "JOB_NOT_FOUND"
	ErrCodeNotCompleted = "JOB_NOT_COMPLETED"
	ErrCodeJobFailed    = "JOB_FAILED"
	ErrCodeQueueFull    = "QUEUE_FULL"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

// ErrorDetail API错误响应体
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func errorBody(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}
