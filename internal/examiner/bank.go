package examiner

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultQuestionsYAML []byte

// bankFile is the on-disk format: a single questions list.
type bankFile struct {
	Questions []string `yaml:"questions"`
}

// Bank is the fallback question source: a fixed list sampled without
// replacement. The list comes from the embedded defaults or an operator
// file, and can be swapped at runtime by the file watcher.
type Bank struct {
	path string

	mu        sync.RWMutex
	questions []string
}

// NewBank loads the bank. With an empty path the embedded default questions
// are used; otherwise the file must parse and contain at least one question.
func NewBank(path string) (*Bank, error) {
	b := &Bank{path: path}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload re-reads the bank source and swaps the question list atomically.
// A failed reload leaves the previous list in place.
func (b *Bank) Reload() error {
	raw := defaultQuestionsYAML
	if b.path != "" {
		data, err := os.ReadFile(b.path)
		if err != nil {
			return fmt.Errorf("examiner: read question bank: %w", err)
		}
		raw = data
	}

	var f bankFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("examiner: parse question bank: %w", err)
	}
	if len(f.Questions) == 0 {
		return fmt.Errorf("examiner: question bank is empty")
	}

	b.mu.Lock()
	b.questions = f.Questions
	b.mu.Unlock()
	return nil
}

// Sample returns n distinct questions drawn uniformly without replacement.
// Errors if the bank holds fewer than n questions, so a misconfigured bank
// is caught at interview start instead of producing a short interview.
func (b *Bank) Sample(n int) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.questions) < n {
		return nil, fmt.Errorf("examiner: question bank has %d questions, need %d", len(b.questions), n)
	}
	out := make([]string, 0, n)
	for _, i := range rand.Perm(len(b.questions))[:n] {
		out = append(out, b.questions[i])
	}
	return out, nil
}

// Size returns the number of questions currently loaded.
func (b *Bank) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.questions)
}
