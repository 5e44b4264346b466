// Package raids turns raw activity history into enriched raid details.
package raids

import (
	"context"
	"fmt"
	"strings"

	"example.com/raidsync/internal/domain"
)

// ManifestLookup resolves manifest definitions.
type ManifestLookup interface {
	GetManifestEntity(ctx context.Context, entityType domain.EntityType, hashID string) (domain.ManifestEntity, error)
}

// Builder maps activities to RaidDetail records.
type Builder struct {
	manifest ManifestLookup
}

// NewBuilder constructs a Builder backed by the manifest lookup.
func NewBuilder(manifest ManifestLookup) *Builder {
	return &Builder{manifest: manifest}
}

// Build resolves the activity definition and reads the activity metrics.
// Missing metrics default to zero.
func (b *Builder) Build(ctx context.Context, activity domain.ActivityRecord) (domain.RaidDetail, error) {
	entity, err := b.manifest.GetManifestEntity(ctx, domain.EntityActivityDefinition, activity.DirectorActivityHash)
	if err != nil {
		return domain.RaidDetail{}, fmt.Errorf("build raid %s: %w", activity.InstanceID, err)
	}

	name, difficulty := ParseRaidName(entity.DisplayName)
	detail := domain.RaidDetail{
		InstanceID:      activity.InstanceID,
		RaidName:        name,
		RaidDifficulty:  difficulty,
		TotalKills:      int(activity.Value(domain.MetricKills)),
		TotalDeaths:     int(activity.Value(domain.MetricDeaths)),
		KDA:             activity.Value(domain.MetricKDA),
		DurationSeconds: int(activity.Value(domain.MetricDurationSeconds)),
		IsCompleted:     activity.Value(domain.MetricCompleted) != 0,
	}
	buildCounter.WithLabelValues(difficultyLabel(difficulty)).Inc()
	return detail, nil
}

// ParseRaidName splits labels such as "Vault of Glass: Master" into the raid
// name and difficulty. A blank label yields EmptyRaidName.
func ParseRaidName(displayName string) (string, domain.RaidDifficulty) {
	if strings.TrimSpace(displayName) == "" {
		return domain.EmptyRaidName, domain.DifficultyUnknown
	}
	name, suffix, found := strings.Cut(displayName, ":")
	name = strings.TrimSpace(name)
	if !found {
		return name, domain.DifficultyUnknown
	}
	// Only the segment directly after the first colon names a difficulty.
	suffix, _, _ = strings.Cut(suffix, ":")
	return name, ParseDifficulty(suffix)
}

// ParseDifficulty matches normal or master case-insensitively.
func ParseDifficulty(label string) domain.RaidDifficulty {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "normal":
		return domain.DifficultyNormal
	case "master":
		return domain.DifficultyMaster
	default:
		return domain.DifficultyUnknown
	}
}

func difficultyLabel(d domain.RaidDifficulty) string {
	if d == domain.DifficultyUnknown {
		return "unknown"
	}
	return strings.ToLower(string(d))
}
