package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"barsync/internal/domain"
)

// Compile-time interface check.
var _ DatasetStore = (*ParquetStore)(nil)

// ParquetStore implements DatasetStore with one Parquet file per symbol.
type ParquetStore struct {
	DataDir string
	Market  string
	log     *slog.Logger
}

// NewParquetStore creates a ParquetStore rooted at dataDir. Files live under
// <dataDir>/<market>/bars.
func NewParquetStore(dataDir, market string) *ParquetStore {
	if market == "" {
		market = "us"
	}
	return &ParquetStore{
		DataDir: dataDir,
		Market:  market,
		log:     slog.Default().With("component", "parquet-store"),
	}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for a symbol's bar history.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

func toRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     b.Symbol,
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func fromRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// ---------------------------------------------------------------------------
// DatasetStore implementation
// ---------------------------------------------------------------------------

// HasDataset reports whether a file exists for symbol, regardless of whether
// it is readable.
func (s *ParquetStore) HasDataset(_ context.Context, symbol string) (bool, error) {
	_, err := os.Stat(s.datasetPath(symbol))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ReadDataset loads a symbol's bars. A corrupt file is logged and reported as
// absent so the caller falls back to a full resync.
func (s *ParquetStore) ReadDataset(_ context.Context, symbol string) ([]domain.Bar, bool) {
	path := s.datasetPath(symbol)
	records, err := readBarFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("ignoring unusable dataset", "symbol", symbol, "path", path, "err", err)
		}
		return nil, false
	}

	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = fromRecord(r)
	}
	return bars, true
}

// WriteDataset writes bars to a temp file next to the target and renames it
// into place, so readers only ever see a complete file.
func (s *ParquetStore) WriteDataset(_ context.Context, symbol string, bars []domain.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = toRecord(b)
	}

	path := s.datasetPath(symbol)
	if err := writeParquetFileAtomic(path, records); err != nil {
		return fmt.Errorf("writing dataset for %s: %w", symbol, err)
	}
	return nil
}

// ListSymbols lists all symbols that have a dataset file.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.barsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(name, ".parquet"))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Merge helpers
// ---------------------------------------------------------------------------

// LastDate returns the latest trade date in bars. ok is false when bars has
// no usable date.
func LastDate(bars []domain.Bar) (last time.Time, ok bool) {
	for _, b := range bars {
		if b.Timestamp.IsZero() || b.Timestamp.UnixMilli() <= 0 {
			continue
		}
		if d := b.Date(); !ok || d.After(last) {
			last, ok = d, true
		}
	}
	return last, ok
}

// MergeBars appends incoming to existing, keeps the first row seen for each
// trade date and sorts the result ascending by date. Existing rows win over
// incoming rows for the same date. With no existing history, incoming is
// returned unchanged.
func MergeBars(existing, incoming []domain.Bar) []domain.Bar {
	if existing == nil {
		return incoming
	}

	seen := make(map[time.Time]struct{}, len(existing)+len(incoming))
	merged := make([]domain.Bar, 0, len(existing)+len(incoming))
	for _, group := range [][]domain.Bar{existing, incoming} {
		for _, b := range group {
			d := b.Date()
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			merged = append(merged, b)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date().Before(merged[j].Date())
	})
	return merged
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) barsDir() string {
	return filepath.Join(s.DataDir, s.Market, "bars")
}

// datasetPath returns the filesystem path for a symbol's dataset.
// Layout: <dataDir>/<market>/bars/<SYMBOL>.parquet
func (s *ParquetStore) datasetPath(symbol string) string {
	name := strings.ToUpper(strings.ReplaceAll(symbol, string(filepath.Separator), "_"))
	return filepath.Join(s.barsDir(), name+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFileAtomic[T any](path string, records []T) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = parquet.Write(tmp, records); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readBarFile opens a dataset and validates that every row has a usable
// trade date. Structural problems are reported as ErrCorruptDataset.
func readBarFile(path string) ([]BarRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDataset, err)
	}
	if _, ok := pf.Schema().Lookup("timestamp"); !ok {
		return nil, fmt.Errorf("%w: no timestamp column", ErrCorruptDataset)
	}

	records, err := parquet.Read[BarRecord](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDataset, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrCorruptDataset)
	}
	for _, r := range records {
		if r.Timestamp <= 0 {
			return nil, fmt.Errorf("%w: row without trade date", ErrCorruptDataset)
		}
	}
	return records, nil
}
