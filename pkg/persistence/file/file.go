// Package file provides a JSON-file persistence backend for development and tests.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/pagebot/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system. One process
// owns a root; a single lock makes check-then-write operations atomic.
type Persistence struct {
	root string
	mu   sync.RWMutex

	scenarios     *ScenarioRepository
	conversations *ConversationRepository
	messages      *MessageRepository
	customers     *CustomerRepository
	pages         *PageRepository
	aiConfigs     *AIConfigRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.scenarios = &ScenarioRepository{p: p}
	p.conversations = &ConversationRepository{p: p}
	p.messages = &MessageRepository{p: p}
	p.customers = &CustomerRepository{p: p}
	p.pages = &PageRepository{p: p}
	p.aiConfigs = &AIConfigRepository{p: p}

	return p
}

var _ persistence.Persistence = (*Persistence)(nil)

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Scenarios() persistence.ScenarioRepository {
	return fp.scenarios
}

func (fp *Persistence) Conversations() persistence.ConversationRepository {
	return fp.conversations
}

func (fp *Persistence) Messages() persistence.MessageRepository {
	return fp.messages
}

func (fp *Persistence) Customers() persistence.CustomerRepository {
	return fp.customers
}

func (fp *Persistence) Pages() persistence.PageRepository {
	return fp.pages
}

func (fp *Persistence) AIConfigs() persistence.AIConfigRepository {
	return fp.aiConfigs
}
