package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RefusalMessage is the fixed response returned whenever generated text
// fails the safety check. The flagged text itself is never exposed.
const RefusalMessage = "Sorry, I can't help with that request."

// Verdict reports whether the text may be returned to the caller. For safe
// verdicts Text carries the text to use, which may differ from the input
// when the checker anonymized sensitive fragments.
type Verdict struct {
	Safe   bool
	Text   string
	Reason string
}

type IChecker interface {
	Name() string
	Check(ctx context.Context, text string) (Verdict, error)
}

type CheckerFactory func(args interface{}) (IChecker, error)

var registry = map[string]CheckerFactory{}

func Register(name string, factory CheckerFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewChecker(name string, args interface{}) (IChecker, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "none"
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported guard checker: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode guard config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode guard config: %w", err)
	}
	return nil
}
