package registry

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/domain"
)

// Partners is the ordered collection of partner fee records. Index 0 is
// seeded at construction and acts as the fallback for any out-of-range
// partner index, so a caller-supplied index is never a hard error.
type Partners struct {
	mu       sync.RWMutex
	partners []domain.PartnerRecord
}

// NewPartners creates a partner ledger seeded with the default partner at
// index 0.
func NewPartners(wallet common.Address, feeBps int, name string) (*Partners, error) {
	if err := checkFeeBps(feeBps); err != nil {
		return nil, err
	}
	return &Partners{
		partners: []domain.PartnerRecord{{Index: 0, Wallet: wallet, FeeBps: feeBps, Name: name}},
	}, nil
}

// Add appends a partner record and returns its index.
func (p *Partners) Add(wallet common.Address, feeBps int, name string) (int, error) {
	if err := checkFeeBps(feeBps); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	index := len(p.partners)
	p.partners = append(p.partners, domain.PartnerRecord{Index: index, Wallet: wallet, FeeBps: feeBps, Name: name})
	return index, nil
}

// Update replaces the record at index.
func (p *Partners) Update(index int, wallet common.Address, feeBps int, name string) error {
	if err := checkFeeBps(feeBps); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.partners) {
		return fmt.Errorf("registry: partner %d out of range", index)
	}
	p.partners[index] = domain.PartnerRecord{Index: index, Wallet: wallet, FeeBps: feeBps, Name: name}
	return nil
}

// Resolve returns the record at index, falling back to partner 0 when the
// index is out of range. The fallback is a usability rule, not an error: an
// unknown partner index means "no specific partner".
func (p *Partners) Resolve(index int) domain.PartnerRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if index < 0 || index >= len(p.partners) {
		return p.partners[0]
	}
	return p.partners[index]
}

// Count returns the number of partner records.
func (p *Partners) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.partners)
}

func checkFeeBps(feeBps int) error {
	if feeBps < 0 || feeBps > domain.MaxFeeBps {
		return fmt.Errorf("registry: fee %d bps out of range [0, %d]", feeBps, domain.MaxFeeBps)
	}
	return nil
}
