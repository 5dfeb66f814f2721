// Package stealth provides human-like input for browser automation: jittered
// keystrokes, pauses between actions, and realistic user agents.
package stealth

import (
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/nikshitha/stack-daily-login/config"
	"github.com/nikshitha/stack-daily-login/logger"
)

// StealthManager handles human-like interaction timing
type StealthManager struct {
	config *config.StealthConfig
	logger *logger.Logger

	mu   sync.Mutex
	rand *rand.Rand

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// NewStealthManager creates a new stealth manager
func NewStealthManager(cfg *config.StealthConfig, log *logger.Logger) *StealthManager {
	return &StealthManager{
		config: cfg,
		logger: log.WithModule("stealth"),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  time.Sleep,
	}
}

func (s *StealthManager) intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

func (s *StealthManager) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// between returns a value in [minMs, maxMs]
func (s *StealthManager) between(minMs, maxMs int) int {
	if maxMs <= minMs {
		return minMs
	}
	return minMs + s.intn(maxMs-minMs+1)
}

// RandomDelay sleeps for a randomized duration between min and max milliseconds
func (s *StealthManager) RandomDelay(minMs, maxMs int) {
	s.sleep(time.Duration(s.between(minMs, maxMs)) * time.Millisecond)
}

// ActionDelay adds human-like delay between actions
func (s *StealthManager) ActionDelay() {
	if !s.config.Enabled {
		return
	}
	s.RandomDelay(s.config.ActionDelayMin, s.config.ActionDelayMax)
}

// keystrokeDelay is the pause after one typed character
func (s *StealthManager) keystrokeDelay() time.Duration {
	delay := s.between(s.config.TypingDelayMin, s.config.TypingDelayMax)
	// Occasional hesitation
	if s.float64() < 0.05 {
		delay += 200 + s.intn(400)
	}
	return time.Duration(delay) * time.Millisecond
}

// HumanType types text into an element one character at a time. With stealth
// disabled the text is inserted in one go.
func (s *StealthManager) HumanType(page *rod.Page, element *rod.Element, text string) error {
	if !s.config.Enabled {
		return element.Input(text)
	}

	mistakes := 0
	for _, char := range text {
		if s.config.TypingMistakeRate > 0 && s.float64() < s.config.TypingMistakeRate {
			if err := element.Input(string(s.getAdjacentKey(char))); err != nil {
				return err
			}
			s.sleep(time.Duration(100+s.intn(200)) * time.Millisecond)
			if err := page.Keyboard.Type(input.Backspace); err != nil {
				return err
			}
			mistakes++
		}

		if err := element.Input(string(char)); err != nil {
			return err
		}
		s.sleep(s.keystrokeDelay())
	}

	s.logger.StealthAction("typing", map[string]interface{}{
		"length":   len(text),
		"mistakes": mistakes,
	})
	return nil
}

// getAdjacentKey returns a key adjacent to the given key on a QWERTY keyboard
func (s *StealthManager) getAdjacentKey(char rune) rune {
	adjacentKeys := map[rune][]rune{
		'a': {'s', 'q', 'z'},
		'b': {'v', 'n', 'g', 'h'},
		'c': {'x', 'v', 'd', 'f'},
		'd': {'s', 'f', 'e', 'r', 'c', 'x'},
		'e': {'w', 'r', 'd', 's'},
		'f': {'d', 'g', 'r', 't', 'v', 'c'},
		'g': {'f', 'h', 't', 'y', 'b', 'v'},
		'h': {'g', 'j', 'y', 'u', 'n', 'b'},
		'i': {'u', 'o', 'k', 'j'},
		'j': {'h', 'k', 'u', 'i', 'm', 'n'},
		'k': {'j', 'l', 'i', 'o', 'm'},
		'l': {'k', 'o', 'p'},
		'm': {'n', 'j', 'k'},
		'n': {'b', 'm', 'h', 'j'},
		'o': {'i', 'p', 'k', 'l'},
		'p': {'o', 'l'},
		'q': {'w', 'a'},
		'r': {'e', 't', 'd', 'f'},
		's': {'a', 'd', 'w', 'e', 'z', 'x'},
		't': {'r', 'y', 'f', 'g'},
		'u': {'y', 'i', 'h', 'j'},
		'v': {'c', 'b', 'f', 'g'},
		'w': {'q', 'e', 'a', 's'},
		'x': {'z', 'c', 's', 'd'},
		'y': {'t', 'u', 'g', 'h'},
		'z': {'a', 'x'},
	}

	upper := char >= 'A' && char <= 'Z'
	lower := char
	if upper {
		lower = char + 32
	}

	adjacent, ok := adjacentKeys[lower]
	if !ok {
		return char
	}
	result := adjacent[s.intn(len(adjacent))]
	if upper {
		result -= 32
	}
	return result
}

// GetRandomUserAgent returns a random, realistic desktop Chrome user agent
func (s *StealthManager) GetRandomUserAgent() string {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	}
	return userAgents[s.intn(len(userAgents))]
}

// ClickElement hovers an element briefly before clicking it
func (s *StealthManager) ClickElement(element *rod.Element) error {
	if s.config.Enabled {
		if err := element.ScrollIntoView(); err != nil {
			return err
		}
		if err := element.Hover(); err != nil {
			return err
		}
		s.RandomDelay(50, 200)
	}
	return element.Click(proto.InputMouseButtonLeft, 1)
}
