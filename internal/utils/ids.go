package utils

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// accountNumberPrefix is the bank's BIN-style prefix on every account.
const accountNumberPrefix = "NB"

// Generator produces identifiers for new entities. It is an interface so
// tests can substitute a fixed sequence and get reproducible fixtures.
type Generator interface {
	AccountNumber() string
	LoanID() string
}

// RandGenerator is the default Generator: account numbers from a seeded
// PRNG, loan ids from random UUIDs.
type RandGenerator struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewGenerator builds a generator from the given seed. The same seed
// yields the same account-number sequence.
func NewGenerator(seed int64) *RandGenerator {
	return &RandGenerator{r: rand.New(rand.NewSource(seed))}
}

// AccountNumber generates a number with the bank prefix and 8 digits.
func (g *RandGenerator) AccountNumber() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%s%d", accountNumberPrefix, 10000000+g.r.Intn(90000000))
}

// LoanID generates a unique loan identifier.
func (g *RandGenerator) LoanID() string {
	return uuid.NewString()
}
