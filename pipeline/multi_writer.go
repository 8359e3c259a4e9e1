package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/idealista-price-trends/models"
)

// MultiWriter fans every row out to several sinks.
type MultiWriter struct {
	sinks []Persister
}

// NewMultiWriter wraps sinks. Nil entries are skipped.
func NewMultiWriter(sinks ...Persister) *MultiWriter {
	mw := &MultiWriter{}
	for _, s := range sinks {
		if s != nil {
			mw.sinks = append(mw.sinks, s)
		}
	}
	return mw
}

// Append writes row to every sink and joins their errors.
func (mw *MultiWriter) Append(row *models.SummaryRow) error {
	var errs []error
	for i, s := range mw.sinks {
		if err := s.Append(row); err != nil {
			errs = append(errs, fmt.Errorf("sink %d append: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (mw *MultiWriter) Close() error {
	var errs []error
	for i, s := range mw.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %d close: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every sink.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, s := range mw.sinks {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("sink %d validation: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
