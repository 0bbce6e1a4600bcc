// Package sink provides the built-in output sink adapters: Postgres frame
// archival, websocket live streaming, and segment-file capture.
package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// Postgres archives frame metadata and detection annotations. Pixel data is
// not stored; the table records what the pipeline saw, not the footage.
type Postgres struct {
	db    *sql.DB
	table string
}

func NewPostgres(db *sql.DB, table string) *Postgres {
	if table == "" {
		table = "frames"
	}
	return &Postgres{db: db, table: table}
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Emit(f *domain.Frame) error {
	var (
		detections []byte
		stageErr   sql.NullString
		err        error
	)
	if len(f.Annotations.Detections) > 0 {
		detections, err = json.Marshal(f.Annotations.Detections)
		if err != nil {
			// A frame that cannot marshal never will; retrying is futile.
			return ports.Permanent(fmt.Errorf("marshal detections: %w", err))
		}
	}
	if f.Annotations.StageError != nil {
		stageErr = sql.NullString{String: f.Annotations.StageError.Message, Valid: true}
	}
	if detections == nil {
		detections = []byte("[]")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (seq, ts, width, height, format, payload_bytes, detections, stage_error) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (seq, ts) DO NOTHING",
		p.table)

	_, err = p.db.Exec(query,
		f.Seq,
		f.Timestamp,
		f.Width,
		f.Height,
		string(f.Format),
		len(f.Data),
		detections,
		stageErr,
	)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", f.Seq, err)
	}
	return nil
}

var _ ports.Sink = (*Postgres)(nil)
