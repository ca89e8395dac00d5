// Package seed loads quest definitions from TOML files.
package seed

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"guildhall/internal/models"
	"guildhall/internal/services"
)

type File struct {
	Quests []services.QuestInput `toml:"quests"`
}

// Decode parses a seed file and builds every quest in it. Nothing is returned
// unless all of them are valid.
func Decode(r io.Reader, author uuid.UUID, now time.Time) ([]*models.Quest, error) {
	var file File
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	quests := make([]*models.Quest, 0, len(file.Quests))
	for i := range file.Quests {
		quest, err := services.BuildQuest(&file.Quests[i], author, now)
		if err != nil {
			return nil, fmt.Errorf("seed: quest %d (%q): %w", i+1, file.Quests[i].Title, err)
		}
		quests = append(quests, quest)
	}
	return quests, nil
}
