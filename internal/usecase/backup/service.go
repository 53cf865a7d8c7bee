package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/dictsync/internal/entity"
)

const (
	defaultBatchSize = 512
	formatVersion    = 1

	recordMeta = "meta"
	recordType = "dict_type"
)

var errMissingMeta = errors.New("backup: missing meta record")

type ProgressReporter interface {
	Start(source string)
	Increment(delta int)
	Finish(total int)
}

type noopProgress struct{}

func (noopProgress) Start(string)  {}
func (noopProgress) Increment(int) {}
func (noopProgress) Finish(int)    {}

// TypeWriter persists imported types, replacing existing ones with the same code.
type TypeWriter interface {
	SaveTypes(ctx context.Context, types []*entity.DictType) error
}

// Service reads and writes NDJSON dictionary backups: one meta record
// followed by one record per type.
type Service struct {
	batchSize int
}

type Option func(*Service)

func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func NewService(opts ...Option) *Service {
	svc := &Service{batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ExportOption func(*exportConfig)

type exportConfig struct {
	types    []string
	reporter ProgressReporter
}

// WithTypes restricts export to the given type codes.
func WithTypes(types []string) ExportOption {
	return func(cfg *exportConfig) {
		cfg.types = append(cfg.types, types...)
	}
}

// WithProgressReporter registers a reporter that receives progress callbacks during export.
func WithProgressReporter(reporter ProgressReporter) ExportOption {
	return func(cfg *exportConfig) {
		cfg.reporter = reporter
	}
}

type ImportOption func(*importConfig)

type importConfig struct {
	types []string
}

// WithImportTypes restricts import to the given type codes.
func WithImportTypes(types []string) ImportOption {
	return func(cfg *importConfig) {
		cfg.types = append(cfg.types, types...)
	}
}

type record struct {
	Type       string           `json:"type"`
	Version    int              `json:"version,omitempty"`
	ExportedAt *time.Time       `json:"exported_at,omitempty"`
	Source     string           `json:"source,omitempty"`
	Payload    *entity.DictType `json:"payload,omitempty"`
}

// Export writes every type produced by types, in order.
func (s *Service) Export(ctx context.Context, w io.Writer, source string, types iter.Seq2[*entity.DictType, error], opts ...ExportOption) error {
	cfg := exportConfig{reporter: noopProgress{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.reporter == nil {
		cfg.reporter = noopProgress{}
	}

	writer := bufio.NewWriter(w)
	now := time.Now().UTC()
	if err := writeRecord(writer, record{Type: recordMeta, Version: formatVersion, ExportedAt: &now, Source: source}); err != nil {
		return err
	}

	cfg.reporter.Start(source)
	total := 0
	for t, err := range types {
		if err != nil {
			return fmt.Errorf("read %s: %w", source, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if t == nil || (len(cfg.types) > 0 && !lo.Contains(cfg.types, t.Type)) {
			continue
		}
		if err := writeRecord(writer, record{Type: recordType, Payload: t}); err != nil {
			return err
		}
		total++
		cfg.reporter.Increment(1)
	}
	cfg.reporter.Finish(total)
	return writer.Flush()
}

// Import reads a backup and saves its types in batches. It returns the number
// of types saved.
func (s *Service) Import(ctx context.Context, r io.Reader, dst TypeWriter, opts ...ImportOption) (int, error) {
	cfg := importConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		metaSeen bool
		batch    = make([]*entity.DictType, 0, s.batchSize)
		saved    int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := dst.SaveTypes(ctx, batch); err != nil {
			return fmt.Errorf("save %d types: %w", len(batch), err)
		}
		saved += len(batch)
		batch = batch[:0]
		return nil
	}

	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return saved, fmt.Errorf("read backup: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var rec record
			if err := json.Unmarshal(line, &rec); err != nil {
				return saved, fmt.Errorf("decode record on line %d: %w", lineNo, err)
			}
			switch rec.Type {
			case recordMeta:
				if rec.Version != formatVersion {
					return saved, fmt.Errorf("backup: unsupported format version %d", rec.Version)
				}
				metaSeen = true
			case recordType:
				if !metaSeen {
					return saved, errMissingMeta
				}
				if rec.Payload == nil {
					return saved, fmt.Errorf("backup: missing payload on line %d", lineNo)
				}
				if len(cfg.types) > 0 && !lo.Contains(cfg.types, rec.Payload.Type) {
					break
				}
				batch = append(batch, rec.Payload)
				if len(batch) >= s.batchSize {
					if err := flush(); err != nil {
						return saved, err
					}
				}
			default:
				// Unknown record kinds are skipped for forward compatibility.
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}

	if !metaSeen {
		return saved, errMissingMeta
	}
	if err := flush(); err != nil {
		return saved, err
	}
	return saved, nil
}

func writeRecord(w io.Writer, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	return nil
}
