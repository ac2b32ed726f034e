package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Messages holds the user-facing push texts. Bodies may contain {count}.
type Messages struct {
	LoginRequired    MessageText `json:"login_required"`
	WaitingUserInput MessageText `json:"waiting_user_input"`
	NewTransactions  MessageText `json:"new_transactions"`
}

// Default returns the built-in texts used when no messages file is configured.
func Default() *Messages {
	return &Messages{
		LoginRequired: MessageText{
			Title: "Reconnect your bank",
			Body:  "Your bank asked you to sign in again. Open the app to reconnect.",
		},
		WaitingUserInput: MessageText{
			Title: "Your bank needs a confirmation",
			Body:  "Open the app to finish connecting your bank.",
		},
		NewTransactions: MessageText{
			Title: "New transactions",
			Body:  "{count} new transactions were imported from your bank.",
		},
	}
}

// Load reads a messages JSON file. Entries missing from the file keep their
// default text; an empty path returns the defaults.
func Load(path string) (*Messages, error) {
	msgs := Default()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	var fromFile Messages
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}

	merge(&msgs.LoginRequired, fromFile.LoginRequired)
	merge(&msgs.WaitingUserInput, fromFile.WaitingUserInput)
	merge(&msgs.NewTransactions, fromFile.NewTransactions)
	return msgs, nil
}

func merge(dst *MessageText, src MessageText) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Body != "" {
		dst.Body = src.Body
	}
}

// WithCount fills the {count} placeholder.
func (m MessageText) WithCount(n int) MessageText {
	m.Body = strings.ReplaceAll(m.Body, "{count}", strconv.Itoa(n))
	return m
}
