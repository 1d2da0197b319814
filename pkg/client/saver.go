package client

import (
	"context"

	"github.com/hyperengineering/mocklens/pkg/item"
)

// ResultSaver saves an edited record set for one screen. Its Save method
// matches the table controller's Saver so a commit goes straight to the
// server.
type ResultSaver struct {
	Client    *Client
	ProjectID string
	ScreenID  string
	Model     string
}

// Save persists records and returns the set as the server stored it, with
// ids reassigned from position. The batch-internal ids are not sent.
func (s *ResultSaver) Save(ctx context.Context, records []item.Record) ([]item.Record, error) {
	res, err := s.Client.SaveResult(ctx, s.ProjectID, s.ScreenID, SaveParams{
		Items: item.StripIDs(records),
		Model: s.Model,
	})
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}
