package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// RecordChange marshals the changed row and inserts the change event in the
// caller's transaction. DELETE events carry only the row id.
func RecordChange(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	table string,
	op string,
	rowID int64,
	row interface{},
) error {
	var payload json.RawMessage
	if row != nil {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		payload = data
	} else {
		payload = json.RawMessage(`null`)
	}

	event := &Event{
		Table:   table,
		Op:      op,
		RowID:   rowID,
		Payload: payload,
		Status:  "pending",
	}

	return repo.InsertEvent(ctx, tx, event)
}
