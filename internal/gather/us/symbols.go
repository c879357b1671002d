package us

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"barsync/internal/domain"
	"barsync/internal/gather"
)

var _ gather.UniverseSource = (*CSVUniverse)(nil)

// CSVUniverse reads the universe from a CSV file with a header row. The
// "symbol" column (or the first column) names each symbol; an optional
// "last_price" column prices it. An empty or non-numeric price marks the
// symbol as delisted. Without a price column every symbol is priced.
type CSVUniverse struct {
	Path string
}

// Snapshot reads the file on every call.
func (u *CSVUniverse) Snapshot(_ context.Context) ([]domain.Listing, error) {
	return LoadCSVListings(u.Path)
}

// LoadCSVListings reads listings from the CSV file at path.
func LoadCSVListings(path string) ([]domain.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	symIdx, priceIdx := 0, -1
	for i, col := range records[0] {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "symbol":
			symIdx = i
		case "last_price":
			priceIdx = i
		}
	}

	listings := make([]domain.Listing, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) <= symIdx {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[symIdx]))
		if sym == "" {
			continue
		}
		l := domain.Listing{Symbol: sym}
		if priceIdx < 0 {
			l.LastPrice = new(float64)
		} else if priceIdx < len(row) {
			if px, err := strconv.ParseFloat(strings.TrimSpace(row[priceIdx]), 64); err == nil {
				l.LastPrice = &px
			}
		}
		listings = append(listings, l)
	}
	return listings, nil
}
