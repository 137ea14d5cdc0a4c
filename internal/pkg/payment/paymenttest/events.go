package paymenttest

import "fmt"

// CapturedEvent builds a payment.captured webhook body.
func CapturedEvent(orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","account_id":"acc_test","event":"payment.captured","contains":["payment"],"payload":{"payment":{"entity":{"id":%q,"entity":"payment","amount":2999,"currency":"INR","status":"captured","order_id":%q,"method":"upi"}}},"created_at":1700000000}`, paymentID, orderID))
}

// FailedEvent builds a payment.failed webhook body.
func FailedEvent(orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","account_id":"acc_test","event":"payment.failed","contains":["payment"],"payload":{"payment":{"entity":{"id":%q,"entity":"payment","amount":2999,"currency":"INR","status":"failed","order_id":%q,"method":"card","error_code":"BAD_REQUEST_ERROR","error_description":"Payment declined by bank"}}},"created_at":1700000000}`, paymentID, orderID))
}

// OrderPaidEvent builds an order.paid webhook body.
func OrderPaidEvent(orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","account_id":"acc_test","event":"order.paid","contains":["payment","order"],"payload":{"payment":{"entity":{"id":%q,"entity":"payment","amount":2999,"currency":"INR","status":"captured","order_id":%q,"method":"netbanking"}},"order":{"entity":{"id":%q,"entity":"order","amount":2999,"amount_paid":2999,"currency":"INR","status":"paid"}}},"created_at":1700000000}`, paymentID, orderID, orderID))
}

// UnknownEvent builds a body for an event kind the service does not handle.
func UnknownEvent(orderID string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"refund.created","payload":{"order":{"entity":{"id":%q}}}}`, orderID))
}
