package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
)

// Seed loads tasks from a JSON array file into s when s is empty.
// It returns the number of tasks added.
func Seed(ctx context.Context, s tasks.Store, path string) (int, error) {
	existing, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed []tasks.Task
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}

	for i, t := range seed {
		t = t.Normalize()
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if err := t.Validate(); err != nil {
			return i, fmt.Errorf("seed task %d: %w", i, err)
		}
		if err := s.Add(ctx, t); err != nil {
			return i, err
		}
	}
	return len(seed), nil
}
