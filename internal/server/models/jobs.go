package models

// Job names understood by the linking worker.
const (
	JobRequestCode = "telegram_request_code"
	JobVerifyCode  = "telegram_verify_code"
)

// Owner identifies the requesting principal inside a job payload.
// Payloads never carry raw secrets.
type Owner struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// RequestCodeJob asks the worker to start a verification handshake.
type RequestCodeJob struct {
	Phone string `json:"phone"`
	Owner Owner  `json:"owner"`
}

// VerifyCodeJob asks the worker to complete a handshake with the
// user-entered code.
type VerifyCodeJob struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Owner Owner  `json:"owner"`
}
