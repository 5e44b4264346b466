package domain

import "time"

// Activity metric keys read from an activity's values map.
const (
	MetricKills           = "kills"
	MetricDeaths          = "deaths"
	MetricKDA             = "killsDeathsAssists"
	MetricDurationSeconds = "activityDurationSeconds"
	MetricCompleted       = "completed"
)

// ActivityRecord is one play-through as reported by the activity history endpoint.
type ActivityRecord struct {
	InstanceID           string
	CharacterID          string
	DirectorActivityHash string
	Period               time.Time
	Values               map[string]float64
}

// Value returns the metric for key, or zero when the upstream omitted it.
func (a ActivityRecord) Value(key string) float64 {
	if a.Values == nil {
		return 0
	}
	return a.Values[key]
}

// ActivityPage is a single page of activity history. A nil page means the
// upstream returned no activities key at all.
type ActivityPage struct {
	Activities []ActivityRecord
}

// EntityType names a manifest definition table.
type EntityType string

const (
	EntityActivityDefinition      EntityType = "DestinyActivityDefinition"
	EntityInventoryItemDefinition EntityType = "DestinyInventoryItemDefinition"
	EntityStatDefinition          EntityType = "DestinyStatDefinition"
)

// ManifestEntity is the subset of a manifest definition the service consumes.
type ManifestEntity struct {
	EntityType  EntityType `json:"entity_type"`
	HashID      string     `json:"hash_id"`
	DisplayName string     `json:"display_name,omitempty"`
	ItemType    int        `json:"item_type,omitempty"`
	ItemSubType int        `json:"item_sub_type,omitempty"`
	IconPath    string     `json:"icon_path,omitempty"`
}

// AfterActionReport carries the post game report fields used for enrichment.
type AfterActionReport struct {
	InstanceID    string
	Period        time.Time
	FromBeginning bool
}
