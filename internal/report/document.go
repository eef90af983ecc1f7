// Package report renders simulation batches as the fixed-format JSON document
// consumed by existing callers, and reads such documents back.
//
// The document layout is a compatibility surface: field order is fixed, every
// real number carries exactly six decimal places, and there is no trailing
// newline.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vsoverseer/simcore/internal/models"
)

// Decimals is the number of digits after the decimal point for real fields.
const Decimals = 6

// Fixed6 is a float64 that marshals with exactly six decimal places.
type Fixed6 float64

// MarshalJSON implements json.Marshaler.
func (f Fixed6) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(f), 'f', Decimals, 64), nil
}

// EpisodeRow is the wire form of one episode.
type EpisodeRow struct {
	UnlockRate        Fixed6 `json:"unlock_rate"`
	ObjectiveComplete bool   `json:"objective_complete"`
	Stability         Fixed6 `json:"stability"`
	ElapsedS          Fixed6 `json:"elapsed_s"`
}

// AggregateRow is the wire form of the aggregate statistics.
type AggregateRow struct {
	Episodes      int    `json:"episodes"`
	ObjectiveRate Fixed6 `json:"objective_rate"`
	UnlockRate    Fixed6 `json:"unlock_rate"`
	StabilityRate Fixed6 `json:"stability_rate"`
	MeanElapsedS  Fixed6 `json:"mean_elapsed_s"`
}

// Document is the complete output of a run.
type Document struct {
	Episodes  []EpisodeRow `json:"episodes"`
	Aggregate AggregateRow `json:"aggregate"`
}

// NewEpisodeRow converts an episode to its wire form.
func NewEpisodeRow(ep models.Episode) EpisodeRow {
	return EpisodeRow{
		UnlockRate:        Fixed6(ep.UnlockRate),
		ObjectiveComplete: ep.ObjectiveComplete,
		Stability:         Fixed6(ep.Stability),
		ElapsedS:          Fixed6(ep.ElapsedS),
	}
}

// NewAggregateRow converts aggregate statistics to their wire form.
func NewAggregateRow(s models.AggregateStats) AggregateRow {
	return AggregateRow{
		Episodes:      s.Episodes,
		ObjectiveRate: Fixed6(s.ObjectiveRate),
		UnlockRate:    Fixed6(s.UnlockRate),
		StabilityRate: Fixed6(s.StabilityRate),
		MeanElapsedS:  Fixed6(s.MeanElapsedS),
	}
}

// NewDocument converts a batch to its wire form.
func NewDocument(b models.Batch) Document {
	rows := make([]EpisodeRow, len(b.Episodes))
	for i, ep := range b.Episodes {
		rows[i] = NewEpisodeRow(ep)
	}
	return Document{
		Episodes:  rows,
		Aggregate: NewAggregateRow(b.Aggregate),
	}
}

// Encode renders b as the compact output document, without a trailing newline.
func Encode(b models.Batch) ([]byte, error) {
	data, err := json.Marshal(NewDocument(b))
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return data, nil
}

// EncodeEpisode renders a single episode object, as streamed per episode.
func EncodeEpisode(ep models.Episode) ([]byte, error) {
	return json.Marshal(NewEpisodeRow(ep))
}

// EncodeAggregate renders only the aggregate object.
func EncodeAggregate(s models.AggregateStats) ([]byte, error) {
	return json.Marshal(NewAggregateRow(s))
}

// Decode parses an output document back into a batch. Values carry only the
// precision of the document, six decimal places.
func Decode(data []byte) (models.Batch, error) {
	var raw struct {
		Episodes  []models.Episode      `json:"episodes"`
		Aggregate models.AggregateStats `json:"aggregate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Batch{}, fmt.Errorf("decoding document: %w", err)
	}
	if raw.Aggregate.Episodes == 0 {
		raw.Aggregate.Episodes = len(raw.Episodes)
	}
	if raw.Episodes == nil {
		raw.Episodes = []models.Episode{}
	}
	return models.Batch{Episodes: raw.Episodes, Aggregate: raw.Aggregate}, nil
}
