package domain

// ResponseCode is the stable gateway response code enum.
type ResponseCode string

const (
	CodeSuccess           ResponseCode = "00"
	CodeDeclined          ResponseCode = "05"
	CodeInvalidCard       ResponseCode = "14"
	CodeInsufficientFunds ResponseCode = "51"
	CodeExpiredCard       ResponseCode = "54"
	CodeFraudSuspected    ResponseCode = "59"
	CodeInvalidCVV        ResponseCode = "82"
	CodeProcessingError   ResponseCode = "96"
)

var responseNames = map[ResponseCode]string{
	CodeSuccess:           "success",
	CodeDeclined:          "declined",
	CodeInvalidCard:       "invalid_card",
	CodeInsufficientFunds: "insufficient_funds",
	CodeExpiredCard:       "expired_card",
	CodeFraudSuspected:    "fraud_suspected",
	CodeInvalidCVV:        "invalid_cvv",
	CodeProcessingError:   "processing_error",
}

// Name returns the snake_case name of the code, or "unknown".
func (c ResponseCode) Name() string {
	if n, ok := responseNames[c]; ok {
		return n
	}
	return "unknown"
}

// Known reports whether c is part of the enum.
func (c ResponseCode) Known() bool {
	_, ok := responseNames[c]
	return ok
}
