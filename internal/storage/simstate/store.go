// Package simstate persists the simulated wallet so dry runs survive restarts.
package simstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

// Store persists simulator state of one trading pair as a JSON file.
type Store struct {
	path string
}

// NewStore creates a state store for pair under dir.
func NewStore(dir string, pair domain.Pair) (*Store, error) {
	if dir == "" {
		return nil, domain.NewValidationError("simulate state dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := fmt.Sprintf("%s.json", strings.ToLower(pair.String()))

	return &Store{path: filepath.Join(dir, name)}, nil
}

// State all persisted simulator data.
type State struct {
	Pair   string            `json:"pair"`
	Wallet map[string]string `json:"wallet"`
	Orders []StoredOrder     `json:"orders,omitempty"`
}

// StoredOrder serializable fill of a simulated order.
type StoredOrder struct {
	ID        string    `json:"id"`
	Side      string    `json:"side"`
	Kind      string    `json:"kind"`
	Price     string    `json:"price"`
	Quantity  string    `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Load reads simulator state from disk. A missing file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read simulate state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes simulator state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}

// NewStoredOrder converts domain.Order into its stored representation.
func NewStoredOrder(o domain.Order) StoredOrder {
	return StoredOrder{
		ID:        o.ID,
		Side:      string(o.Side),
		Kind:      string(o.Kind),
		Price:     o.Price.String(),
		Quantity:  o.Quantity.String(),
		CreatedAt: o.CreatedAt,
	}
}

// ToOrder reconstructs domain.Order from stored data.
func (so StoredOrder) ToOrder(symbol string) (domain.Order, error) {
	price, err := decimal.NewFromString(so.Price)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "decode order price")
	}

	qty, err := decimal.NewFromString(so.Quantity)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "decode order quantity")
	}

	return domain.Order{
		ID:        so.ID,
		Symbol:    symbol,
		Side:      domain.Side(so.Side),
		Kind:      domain.OrderKind(so.Kind),
		Price:     price,
		Quantity:  qty,
		Executed:  qty,
		Status:    "FILLED",
		CreatedAt: so.CreatedAt,
	}, nil
}
