package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/movement"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which journal payloads are compressed.
const DefaultCompressThreshold = 4 * 1024

// payloadCodec compresses large payloads with zstd. Encoder and decoder are
// safe for concurrent EncodeAll/DecodeAll.
type payloadCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

func newPayloadCodec(threshold int) (*payloadCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	return &payloadCodec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

// encode returns exactly one of plain and compressed.
func (c *payloadCodec) encode(payload []byte) (plain, compressed []byte, algo CompressionAlgo) {
	if len(payload) <= c.threshold {
		return payload, nil, CompressionNone
	}
	return nil, c.encoder.EncodeAll(payload, nil), CompressionZstd
}

func (c *payloadCodec) decode(plain, compressed []byte, algo CompressionAlgo) ([]byte, error) {
	if algo != CompressionZstd {
		return plain, nil
	}
	out, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}

// journalRow is the movement_journal table.
type journalRow struct {
	MovementID        id.ID           `db:"movement_id"`
	MovementType      string          `db:"movement_type"`
	ItemCode          string          `db:"item_code"`
	Status            string          `db:"status"`
	EntryID           *id.ID          `db:"entry_id"`
	ErrorCode         *string         `db:"error_code"`
	ErrorMessage      *string         `db:"error_message"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	RecordedAt        time.Time       `db:"recorded_at"`
}

// MovementJournal stores the outcome of every movement request.
type MovementJournal struct {
	txManager *TxManager
	codec     *payloadCodec
}

var _ movement.Journal = (*MovementJournal)(nil)

// NewMovementJournal creates a journal that zstd-compresses payloads above threshold bytes.
func NewMovementJournal(txManager *TxManager, threshold int) (*MovementJournal, error) {
	codec, err := newPayloadCodec(threshold)
	if err != nil {
		return nil, err
	}
	return &MovementJournal{txManager: txManager, codec: codec}, nil
}

// Record upserts the outcome; a rejected movement that is later posted keeps its latest status.
func (j *MovementJournal) Record(ctx context.Context, rec movement.JournalRecord) error {
	payload, err := json.Marshal(rec.Movement)
	if err != nil {
		return fmt.Errorf("marshal movement: %w", err)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	plain, compressed, algo := j.codec.encode(payload)
	_, err = j.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO movement_journal (
			movement_id, movement_type, item_code, status, entry_id,
			error_code, error_message, payload, payload_compressed, compression_algo, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (movement_id) DO UPDATE SET
			status = EXCLUDED.status,
			entry_id = EXCLUDED.entry_id,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			recorded_at = EXCLUDED.recorded_at`,
		rec.Movement.ID, string(rec.Movement.Type), rec.Movement.ItemCode, string(rec.Status), rec.EntryID,
		nullIfEmpty(rec.ErrorCode), nullIfEmpty(rec.ErrorMessage), nullJSON(plain), compressed, algo, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("record movement %s: %w", rec.Movement.ID, err)
	}
	return nil
}

// Get returns the journal record of a movement.
func (j *MovementJournal) Get(ctx context.Context, movementID id.ID) (movement.JournalRecord, error) {
	var row journalRow
	err := pgxscan.Get(ctx, j.txManager.GetQuerier(ctx), &row, `
		SELECT movement_id, movement_type, item_code, status, entry_id, error_code, error_message,
		       payload, payload_compressed, compression_algo, recorded_at
		FROM movement_journal
		WHERE movement_id = $1`, movementID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return movement.JournalRecord{}, apperror.NewNotFound("movement", movementID.String())
		}
		return movement.JournalRecord{}, fmt.Errorf("get journal record: %w", err)
	}
	return j.toRecord(row)
}

func (j *MovementJournal) toRecord(row journalRow) (movement.JournalRecord, error) {
	payload, err := j.codec.decode(row.Payload, row.PayloadCompressed, row.CompressionAlgo)
	if err != nil {
		return movement.JournalRecord{}, err
	}
	rec := movement.JournalRecord{
		Status:     movement.Status(row.Status),
		EntryID:    row.EntryID,
		RecordedAt: row.RecordedAt,
	}
	if err := json.Unmarshal(payload, &rec.Movement); err != nil {
		return movement.JournalRecord{}, fmt.Errorf("unmarshal movement: %w", err)
	}
	if row.ErrorCode != nil {
		rec.ErrorCode = *row.ErrorCode
	}
	if row.ErrorMessage != nil {
		rec.ErrorMessage = *row.ErrorMessage
	}
	return rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return json.RawMessage(b)
}
