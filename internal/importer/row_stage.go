package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hr-bulk-import/internal/models"
	"hr-bulk-import/internal/reference"
	"hr-bulk-import/internal/remote"
	"hr-bulk-import/internal/tabular"
	"hr-bulk-import/internal/validation"
)

// rowStage is the single worker that turns rows into create calls, strictly in order.
type rowStage struct {
	importType  string
	transformer validation.Transformer
	index       *reference.Index
	creator     Creator
	log         zerolog.Logger
}

// process handles the row found on source line rowNum and returns its error, if any.
func (s rowStage) process(ctx context.Context, rowNum int, raw tabular.Row) (rowErr *models.RowError) {
	defer func() {
		if r := recover(); r != nil {
			rowErr = &models.RowError{
				Row:     rowNum,
				Column:  models.ColumnMultiple,
				Message: fmt.Sprintf("unexpected error: %v", r),
				Data:    rowData(raw),
			}
		}
	}()

	payload, err := s.transformer.Transform(raw, s.index)
	if err != nil {
		col := models.ColumnMultiple
		var fe *validation.FieldError
		if errors.As(err, &fe) && fe.Column != "" {
			col = fe.Column
		}
		s.log.Debug().Int("row", rowNum).Str("column", col).Err(err).Msg("row rejected")
		return &models.RowError{Row: rowNum, Column: col, Message: err.Error(), Data: rowData(raw)}
	}

	if s.transformer.Stub() {
		return nil
	}

	if err := s.creator.Create(ctx, s.importType, payload); err != nil {
		msg := err.Error()
		var rerr *remote.Error
		if errors.As(err, &rerr) {
			msg = rerr.Message
		}
		s.log.Debug().Int("row", rowNum).Err(err).Msg("create failed")
		return &models.RowError{Row: rowNum, Column: models.ColumnMultiple, Message: msg, Data: rowData(raw)}
	}
	return nil
}

func rowData(raw tabular.Row) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}
