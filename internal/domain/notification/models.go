package notification

import (
	"errors"
	"strconv"
)

// Notification categories, used as the client-side route.
const (
	CategoryAccounts     = "accounts"
	CategoryTransactions = "transactions"
)

// Push kinds carried in the data payload.
const (
	KindActionRequired  = "bank_connection_action_required"
	KindNewTransactions = "bank_connection_new_transactions"
)

var ErrInvalidUserID = errors.New("valid user ID is required")

// UserTopic is the FCM topic every device of a user subscribes to.
func UserTopic(userID int64) string {
	return "user-" + strconv.FormatInt(userID, 10)
}
