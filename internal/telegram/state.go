package telegram

import (
	"sync"

	"github.com/nextlevelbuilder/clawbridge/internal/progress"
)

// chatState is the per-user conversational state this bridge keeps beyond
// what's persisted in internal/store: the working directory, output
// verbosity, chosen model/betas, and an in-progress /repo browse path.
// Unlike python-telegram-bot's context.user_data, telego has no built-in
// per-chat scratch map, so the orchestrator owns one explicitly.
type chatState struct {
	mu sync.Mutex

	directory  string
	verbosity  progress.Verbosity
	model      string
	betas      []string
	browsePath string // absolute path currently shown by /repo, "" when idle
}

// stateFor returns (creating if necessary) the chatState for userID, seeded
// with the bridge's default working directory.
func (c *Channel) stateFor(userID string) *chatState {
	if v, ok := c.states.Load(userID); ok {
		return v.(*chatState)
	}
	st := &chatState{
		directory: c.defaultDirectory,
		verbosity: progress.VerbosityToolNames,
		model:     c.defaultModel,
		betas:     append([]string(nil), c.defaultBetas...),
	}
	actual, _ := c.states.LoadOrStore(userID, st)
	return actual.(*chatState)
}

func (s *chatState) snapshot() (directory string, verbosity progress.Verbosity, model string, betas []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory, s.verbosity, s.model, append([]string(nil), s.betas...)
}

func (s *chatState) setDirectory(dir string) {
	s.mu.Lock()
	s.directory = dir
	s.mu.Unlock()
}

func (s *chatState) setVerbosity(v progress.Verbosity) {
	s.mu.Lock()
	s.verbosity = v
	s.mu.Unlock()
}

func (s *chatState) setModel(model string, betas []string) {
	s.mu.Lock()
	s.model = model
	s.betas = betas
	s.mu.Unlock()
}

func (s *chatState) setBrowsePath(path string) {
	s.mu.Lock()
	s.browsePath = path
	s.mu.Unlock()
}

func (s *chatState) getBrowsePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browsePath
}
