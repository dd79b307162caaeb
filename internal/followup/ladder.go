package followup

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ladderTierCount is fixed: the escalation sequence always has three
// tiers. The delays are configuration; the count and the strictly
// increasing order are invariants.
const ladderTierCount = 3

// Tier is one step of the escalation ladder.
type Tier struct {
	Delay   time.Duration
	Message string
}

// Ladder is the ordered escalation sequence.
type Ladder struct {
	Tiers []Tier
}

// Len returns the number of tiers.
func (l Ladder) Len() int { return len(l.Tiers) }

// LastIndex returns the index of the final tier.
func (l Ladder) LastIndex() int { return len(l.Tiers) - 1 }

// Validate checks the ladder invariants.
func (l Ladder) Validate() error {
	if len(l.Tiers) != ladderTierCount {
		return fmt.Errorf("ladder must have exactly %d tiers, got %d", ladderTierCount, len(l.Tiers))
	}

	var prev time.Duration
	for i, tier := range l.Tiers {
		if tier.Delay <= prev {
			return fmt.Errorf("tier %d delay %s must be greater than tier %d delay %s",
				i, tier.Delay, i-1, prev)
		}
		if tier.Message == "" {
			return fmt.Errorf("tier %d has no message", i)
		}
		prev = tier.Delay
	}
	return nil
}

// DefaultLadder returns the built-in 30m / 2h / 24h sequence.
func DefaultLadder() Ladder {
	return Ladder{Tiers: []Tier{
		{
			Delay:   30 * time.Minute,
			Message: "Oi! Vi que você ficou de responder. Posso te ajudar com mais alguma informação?",
		},
		{
			Delay:   2 * time.Hour,
			Message: "Oi, tudo bem? Ainda estou por aqui se quiser continuar nossa conversa. Qualquer dúvida é só chamar!",
		},
		{
			Delay:   24 * time.Hour,
			Message: "Oi! Essa é minha última mensagem por enquanto. Se ainda tiver interesse, é só me responder por aqui que retomamos de onde paramos.",
		},
	}}
}

type ladderFile struct {
	Tiers []struct {
		Delay   string `yaml:"delay"`
		Message string `yaml:"message"`
	} `yaml:"tiers"`
}

// LoadLadder reads a ladder from a YAML file. An empty path returns the
// default ladder.
func LoadLadder(path string) (Ladder, error) {
	if path == "" {
		return DefaultLadder(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Ladder{}, fmt.Errorf("read ladder file: %w", err)
	}

	var file ladderFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Ladder{}, fmt.Errorf("parse ladder file: %w", err)
	}

	ladder := Ladder{Tiers: make([]Tier, 0, len(file.Tiers))}
	for i, t := range file.Tiers {
		delay, err := time.ParseDuration(t.Delay)
		if err != nil {
			return Ladder{}, fmt.Errorf("tier %d: invalid delay %q: %w", i, t.Delay, err)
		}
		ladder.Tiers = append(ladder.Tiers, Tier{Delay: delay, Message: t.Message})
	}

	if err := ladder.Validate(); err != nil {
		return Ladder{}, err
	}
	return ladder, nil
}
