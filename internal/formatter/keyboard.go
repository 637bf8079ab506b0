package formatter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/expensesync/pkg/models"
)

// Callback actions
const (
	CallbackConfirm   = "ok"  // accept a transaction's category as correct
	CallbackJobStatus = "job" // refresh a job's status message
)

// CallbackData is the payload of an inline button. Telegram caps it at 64
// bytes, hence the short keys.
type CallbackData struct {
	Action string `json:"a"`
	ID     string `json:"i"`
}

// BuildReviewKeyboard adds a confirm button per transaction, two per row
func BuildReviewKeyboard(txs []*appmodels.Transaction) *models.InlineKeyboardMarkup {
	var buttons []models.InlineKeyboardButton
	for _, t := range txs {
		buttons = append(buttons, models.InlineKeyboardButton{
			Text: fmt.Sprintf("✓ #%d %s", t.ID, t.Category),
			CallbackData: EncodeCallback(CallbackData{
				Action: CallbackConfirm,
				ID:     strconv.FormatInt(t.ID, 10),
			}),
		})
	}

	var rows [][]models.InlineKeyboardButton
	for i := 0; i < len(buttons); i += 2 {
		end := min(i+2, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BuildJobKeyboard adds a refresh button to a job status message
func BuildJobKeyboard(jobID string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "🔄 Refresh", CallbackData: EncodeCallback(CallbackData{Action: CallbackJobStatus, ID: jobID})},
		}},
	}
}

// EncodeCallback encodes callback data to string
func EncodeCallback(data CallbackData) string {
	b, _ := json.Marshal(data)
	return string(b)
}

// DecodeCallback decodes callback data from string
func DecodeCallback(data string) (CallbackData, error) {
	var cb CallbackData
	if err := json.Unmarshal([]byte(data), &cb); err != nil {
		return cb, fmt.Errorf("failed to decode callback: %w", err)
	}
	return cb, nil
}
