// Package state persists the continuation record that carries an export across page loads.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aluiziolira/go-scrape-orders/models"
)

// RecordVersion is bumped whenever the persisted layout changes incompatibly.
const RecordVersion = 1

var (
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("state: corrupt continuation record")
	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("state: store closed")
)

// IDSet is a set of order ids persisted as a sorted JSON array.
type IDSet map[string]struct{}

// Add inserts id into the set.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Has reports whether id is present.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return json.Marshal(ids)
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	*s = set
	return nil
}

// Continuation is everything needed to resume an export on a freshly loaded page.
type Continuation struct {
	InProgress        bool                 `json:"inProgress"`
	Options           models.ExportOptions `json:"options"`
	YearsToProcess    []string             `json:"yearsToProcess"`
	CurrentYearIndex  int                  `json:"currentYearIndex"`
	CurrentStartIndex int                  `json:"currentStartIndex"`
	CollectedOrders   []models.Order       `json:"collectedOrders"`
	SeenOrderIDs      IDSet                `json:"seenOrderIds"`
	BaseURL           string               `json:"baseUrl"`
	PagesScraped      int                  `json:"pagesScraped"`
	StartedAt         time.Time            `json:"startedAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
	Version           int                  `json:"version"`
}

// NewContinuation builds a fresh in-progress record positioned on the first page of the first year.
func NewContinuation(opts models.ExportOptions, years []string, baseURL string, now time.Time) *Continuation {
	return &Continuation{
		InProgress:      true,
		Options:         opts,
		YearsToProcess:  append([]string(nil), years...),
		CollectedOrders: []models.Order{},
		SeenOrderIDs:    make(IDSet),
		BaseURL:         baseURL,
		StartedAt:       now,
		UpdatedAt:       now,
		Version:         RecordVersion,
	}
}

// Merge appends orders whose ids have not been collected yet and returns how many were added.
func (c *Continuation) Merge(orders []models.Order) int {
	if c.SeenOrderIDs == nil {
		c.SeenOrderIDs = make(IDSet)
	}
	added := 0
	for _, order := range orders {
		if c.SeenOrderIDs.Has(order.OrderID) {
			continue
		}
		c.SeenOrderIDs.Add(order.OrderID)
		c.CollectedOrders = append(c.CollectedOrders, order)
		added++
	}
	return added
}

// CurrentYear returns the year being scraped, or "" once every year is done.
func (c *Continuation) CurrentYear() string {
	if c.CurrentYearIndex < 0 || c.CurrentYearIndex >= len(c.YearsToProcess) {
		return ""
	}
	return c.YearsToProcess[c.CurrentYearIndex]
}

// Exhausted reports whether every year has been scraped.
func (c *Continuation) Exhausted() bool {
	return c.CurrentYearIndex >= len(c.YearsToProcess)
}

// Validate checks the invariants a resumable record must hold.
func (c *Continuation) Validate(pageSize int) error {
	if c.Version != RecordVersion {
		return fmt.Errorf("unsupported record version %d", c.Version)
	}
	if c.InProgress && len(c.YearsToProcess) == 0 {
		return fmt.Errorf("in-progress record has no years")
	}
	if c.CurrentYearIndex < 0 {
		return fmt.Errorf("negative year index %d", c.CurrentYearIndex)
	}
	if c.CurrentStartIndex < 0 || (pageSize > 0 && c.CurrentStartIndex%pageSize != 0) {
		return fmt.Errorf("start index %d is not a multiple of page size %d", c.CurrentStartIndex, pageSize)
	}
	if len(c.SeenOrderIDs) != len(c.CollectedOrders) {
		return fmt.Errorf("seen set has %d ids for %d orders", len(c.SeenOrderIDs), len(c.CollectedOrders))
	}
	for _, order := range c.CollectedOrders {
		if !c.SeenOrderIDs.Has(order.OrderID) {
			return fmt.Errorf("order %s missing from seen set", order.OrderID)
		}
	}
	return nil
}

// Encode renders the record in its persisted JSON form.
func Encode(c *Continuation) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode continuation: %w", err)
	}
	return data, nil
}

// Decode parses a persisted record. Any failure is reported as ErrCorrupt.
func Decode(data []byte) (*Continuation, error) {
	var c Continuation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c.Version != RecordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, c.Version)
	}
	if c.SeenOrderIDs == nil {
		c.SeenOrderIDs = make(IDSet)
	}
	if c.CollectedOrders == nil {
		c.CollectedOrders = []models.Order{}
	}
	return &c, nil
}
