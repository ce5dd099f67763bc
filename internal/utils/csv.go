package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"cryptoTradeSim/internal/domain"
)

// WriteKlinesToCSV writes a kline series with a header row.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"open_time", "close_time", "asset_id", "interval", "open", "high", "low", "close", "volume"})

	for _, k := range klines {
		writer.Write([]string{
			k.OpenTime.Format(time.RFC3339),
			k.CloseTime.Format(time.RFC3339),
			k.AssetID,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// ReadKlinesFromCSV reads a kline series written by WriteKlinesToCSV.
func ReadKlinesFromCSV(filename string) ([]*domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV %s: %w", filename, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV %s has no data rows", filename)
	}

	klines := make([]*domain.Kline, 0, len(records)-1)
	for i, rec := range records[1:] { // skip header
		if len(rec) < 9 {
			return nil, fmt.Errorf("CSV %s row %d: expected 9 columns, got %d", filename, i+2, len(rec))
		}
		openTime, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("CSV %s row %d: bad open_time: %w", filename, i+2, err)
		}
		closeTime, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			return nil, fmt.Errorf("CSV %s row %d: bad close_time: %w", filename, i+2, err)
		}
		vals := make([]float64, 5)
		for j, col := range rec[4:9] {
			v, err := strconv.ParseFloat(col, 64)
			if err != nil {
				return nil, fmt.Errorf("CSV %s row %d col %d: bad number: %w", filename, i+2, j+5, err)
			}
			vals[j] = v
		}
		klines = append(klines, &domain.Kline{
			OpenTime:  openTime,
			CloseTime: closeTime,
			AssetID:   rec[2],
			Interval:  rec[3],
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return klines, nil
}

// ReadSignalsFromCSV reads a signal stream: time, asset_id, side, confidence.
func ReadSignalsFromCSV(filename string) ([]domain.Signal, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV %s: %w", filename, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV %s has no data rows", filename)
	}

	signals := make([]domain.Signal, 0, len(records)-1)
	for i, rec := range records[1:] { // skip header
		if len(rec) < 4 {
			return nil, fmt.Errorf("CSV %s row %d: expected 4 columns, got %d", filename, i+2, len(rec))
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("CSV %s row %d: bad time: %w", filename, i+2, err)
		}
		side := domain.OrderSide(rec[2])
		if side != domain.Buy && side != domain.Sell {
			return nil, fmt.Errorf("CSV %s row %d: unknown side %q", filename, i+2, rec[2])
		}
		confidence, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("CSV %s row %d: bad confidence: %w", filename, i+2, err)
		}
		signals = append(signals, domain.Signal{
			Time:       ts,
			AssetID:    rec[1],
			Side:       side,
			Confidence: confidence,
		})
	}
	return signals, nil
}
